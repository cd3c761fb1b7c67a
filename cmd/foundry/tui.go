package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/context-foundry/core/internal/eventbus"
	"github.com/context-foundry/core/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui <task_id>",
	Short: "Open a live dashboard for a running or finished build",
	Long: `tui subscribes to the task's event log from sequence 0 and renders
phase transitions, the live event feed, and budget zone changes as they
arrive, replaying history first and then following the build in real time.`,
	Args: cobra.ExactArgs(1),
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	taskID := args[0]

	dir, err := resolveTargetDir(targetDirFlag)
	if err != nil {
		return err
	}

	bus, err := eventbus.New(dir, taskID)
	if err != nil {
		return fmt.Errorf("foundry: open event bus: %w", err)
	}
	defer bus.Close()

	sub, err := bus.Subscribe(0)
	if err != nil {
		return fmt.Errorf("foundry: subscribe to events: %w", err)
	}
	defer sub.Unsubscribe()

	program, _ := tui.NewProgram(taskID)

	go func() {
		for e := range sub.Events {
			program.Send(tui.ToMsg(e))
		}
	}()

	_, err = program.Run()
	return err
}
