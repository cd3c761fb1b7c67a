package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/context-foundry/core/internal/config"
	"github.com/context-foundry/core/pkg/model"
)

var startBudgetProfile string

var startCmd = &cobra.Command{
	Use:   "start <description>",
	Short: "Start a new build",
	Long: `Start creates a fresh task, runs it through Planning, Scouting,
Architecting, Building, Validating, and (if needed) Healing, and prints the
resulting task id and exit condition. The task id is required to resume,
check status, or cancel this build later.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startBudgetProfile, "budget-profile", "", "named budget allocation profile (default: config's budget_profile)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("foundry: load config: %w", err)
	}

	dir, err := resolveTargetDir(targetDirFlag)
	if err != nil {
		return err
	}

	opts := cfg.Options
	if startBudgetProfile != "" {
		opts.BudgetProfile = startBudgetProfile
	}

	task := model.Task{
		ID:              newTaskID(),
		Description:     args[0],
		TargetDirectory: dir,
		BudgetProfile:   opts.BudgetProfile,
		Options:         opts,
		CreatedAt:       time.Now(),
	}

	return runTask(cfg, task)
}

// runTask builds the collaborator graph for task, runs it to completion, and
// maps the result to a process exit code.
func runTask(cfg *config.Config, task model.Task) error {
	rt, cleanup, err := buildRuntime(cfg, task)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := watchCancellation(context.Background(), task.TargetDirectory, task.ID)
	defer cancel()

	exit, runErr := rt.machine.Run(ctx, task.ID, task)
	fmt.Printf("task %s: %s\n", task.ID, exit)
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
	}

	code := exitCodeFor(exit)
	if code != 0 {
		os.Exit(code)
	}
	return nil
}
