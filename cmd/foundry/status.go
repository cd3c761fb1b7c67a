package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/context-foundry/core/internal/budget"
	"github.com/context-foundry/core/internal/checkpoint"
	"github.com/context-foundry/core/internal/config"
	"github.com/context-foundry/core/internal/eventbus"
	"github.com/context-foundry/core/pkg/model"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status <task_id>",
	Short: "Show a build's current phase, ledger, and zone",
	Long: `status reconstructs the externally-observable snapshot (phase, token
ledger, budget zone, last event sequence) from the task's checkpoint and
event log, without re-running anything. With --watch, it reprints whenever
the checkpoint file changes, including changes dropped by another process
resuming the same task.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatusCmd,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "reprint on every externally-dropped checkpoint update")
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	taskID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("foundry: load config: %w", err)
	}

	dir, err := resolveTargetDir(targetDirFlag)
	if err != nil {
		return err
	}

	store := checkpoint.New(dir)
	if err := printStatus(cfg, store, dir, taskID); err != nil {
		return err
	}
	if !statusWatch {
		return nil
	}

	watcher := checkpoint.WatchExternal(store)
	defer watcher.Close()
	for changed := range watcher.Changed() {
		if changed != taskID {
			continue
		}
		if err := printStatus(cfg, store, dir, taskID); err != nil {
			return err
		}
	}
	return nil
}

// printStatus renders one snapshot of taskID's checkpoint and event log.
func printStatus(cfg *config.Config, store *checkpoint.Store, dir, taskID string) error {
	cp, err := store.Load(taskID)
	if err != nil {
		return fmt.Errorf("foundry: load checkpoint: %w", err)
	}
	if cp == nil {
		fmt.Printf("no checkpoint found for task %s\n", taskID)
		return nil
	}

	bus, err := eventbus.New(dir, taskID)
	if err != nil {
		return fmt.Errorf("foundry: open event bus: %w", err)
	}
	defer bus.Close()

	monitor := budget.New(cfg.Profile(cfg.Options.BudgetProfile), cfg.Options.ContextWindow)
	budgetPhase := budgetPhaseFor(cp.Cursor.NextPhase)
	check := monitor.Check(budgetPhase, cp.Ledger.Phases[budgetPhase].Total())

	bold := color.New(color.Bold)
	bold.Printf("task %s\n", taskID)
	fmt.Printf("  next phase:  %s\n", cp.Cursor.NextPhase)
	fmt.Printf("  heal attempt: %d\n", cp.Cursor.HealAttempt)
	fmt.Printf("  succeeded build tasks: %d\n", len(cp.Cursor.SucceededTasks))
	fmt.Printf("  tokens used: %d (total), %d (%s phase)\n",
		cp.Ledger.Total.Total(), cp.Ledger.Phases[budgetPhase].Total(), budgetPhase)
	fmt.Printf("  zone: %s\n", zoneColor(check.Zone))
	fmt.Printf("  last event seq: %d\n", bus.NextSeq()-1)

	return nil
}

// zoneColor renders zone in the severity color fatih/color associates with
// it: smart is unremarkable, dumb is warned, critical and over_budget are
// errors.
func zoneColor(zone model.Zone) string {
	switch zone {
	case model.ZoneDumb:
		return color.YellowString(string(zone))
	case model.ZoneCritical, model.ZoneOverBudget:
		return color.RedString(string(zone))
	default:
		return color.GreenString(string(zone))
	}
}
