package orchestrator

import (
	"fmt"

	"github.com/context-foundry/core/pkg/model"
)

// assertOutputsDisjoint is a defensive runtime check that no two BuildTasks
// submitted to the same Building wave claim an overlapping output path.
// Plan.Validate already enforces this globally once after Architecting and
// after every Healing merge; this check guards the narrower, wave-local view
// Orchestrator.build actually schedules.
func assertOutputsDisjoint(tasks []model.BuildTask) error {
	owner := make(map[string]string, len(tasks)*2)
	for _, t := range tasks {
		for _, out := range t.Outputs {
			if prev, ok := owner[out]; ok {
				return fmt.Errorf("orchestrator: output %q claimed by both %q and %q in the same build wave", out, prev, t.ID)
			}
			owner[out] = t.ID
		}
	}
	return nil
}
