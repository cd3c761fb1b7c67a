package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task_id>",
	Short: "Request cooperative cancellation of a running build",
	Long: `cancel writes a marker file the running build's process polls for.
Cancellation is cooperative: the build stops at its next poll point (between
phases, or between worker jobs within a phase) rather than immediately, so a
checkpoint reflects fully-settled state.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	dir, err := resolveTargetDir(targetDirFlag)
	if err != nil {
		return err
	}

	path := cancelMarkerPath(dir, args[0])
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("foundry: create cancel marker directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		return fmt.Errorf("foundry: write cancel marker: %w", err)
	}

	fmt.Printf("cancellation requested for task %s\n", args[0])
	return nil
}

// cancelPollInterval bounds how long a cancelled build keeps running after
// `foundry cancel` writes the marker.
const cancelPollInterval = 500 * time.Millisecond

// watchCancellation derives a context from parent that is cancelled as soon
// as root/.state/cancel/<taskID> appears on disk.
func watchCancellation(parent context.Context, root, taskID string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	markerPath := cancelMarkerPath(root, taskID)

	go func() {
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := os.Stat(markerPath); err == nil {
					cancel()
					return
				}
			}
		}
	}()

	return ctx, cancel
}
