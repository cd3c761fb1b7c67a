package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/context-foundry/core/internal/eventbus"
)

var (
	eventsFrom   int64
	eventsFollow bool
)

// eventIdleTimeout bounds how long a non-follow tail waits for the live
// stream to go quiet before it treats the replay as finished.
const eventIdleTimeout = 300 * time.Millisecond

var eventsCmd = &cobra.Command{
	Use:   "events <task_id>",
	Short: "Tail a build's event log",
	Long: `events replays every event at or after --from (default 0) and, with
--follow, continues streaming live events as the build produces them. Each
event is printed as one JSON line.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().Int64Var(&eventsFrom, "from", 0, "replay starting at this sequence number")
	eventsCmd.Flags().BoolVar(&eventsFollow, "follow", false, "keep streaming live events after the replay catches up")
}

func runEvents(cmd *cobra.Command, args []string) error {
	dir, err := resolveTargetDir(targetDirFlag)
	if err != nil {
		return err
	}

	bus, err := eventbus.New(dir, args[0])
	if err != nil {
		return fmt.Errorf("foundry: open event bus: %w", err)
	}
	defer bus.Close()

	sub, err := bus.Subscribe(eventsFrom)
	if err != nil {
		return fmt.Errorf("foundry: subscribe to events: %w", err)
	}
	defer sub.Unsubscribe()

	idle := time.NewTimer(eventIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case e, ok := <-sub.Events:
			if !ok {
				return nil
			}
			line, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("foundry: marshal event: %w", err)
			}
			fmt.Println(string(line))
			if !eventsFollow {
				if !idle.Stop() {
					<-idle.C
				}
				idle.Reset(eventIdleTimeout)
			}
		case <-idle.C:
			if !eventsFollow {
				return nil
			}
		}
	}
}
