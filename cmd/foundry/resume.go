package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/context-foundry/core/internal/config"
	"github.com/context-foundry/core/pkg/model"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <task_id>",
	Short: "Resume a build from its last checkpoint",
	Long: `resume reconstructs a task from its checkpoint's cursor and continues
from the next unfinished phase. It never re-executes a BuildTask the
checkpoint already recorded as succeeded.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("foundry: load config: %w", err)
	}

	dir, err := resolveTargetDir(targetDirFlag)
	if err != nil {
		return err
	}

	task := model.Task{
		ID:              args[0],
		TargetDirectory: dir,
		BudgetProfile:   cfg.Options.BudgetProfile,
		Options:         cfg.Options,
		CreatedAt:       time.Now(),
	}

	return runTask(cfg, task)
}
