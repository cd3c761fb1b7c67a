package model

import (
	"fmt"
	"sort"
)

// ScoutTopic is one research topic the Scouting phase fans out to a worker.
type ScoutTopic struct {
	Title             string `json:"title"`
	Prompt            string `json:"prompt"`
	EstimatedTokens   int64  `json:"estimated_tokens"`
}

// BuildTask is a unit of implementation work produced by Architecting.
//
// Invariant: outputs(a) ∩ outputs(b) = ∅ for any two tasks a ≠ b in the same
// Plan (output isolation). Plan.Validate enforces this.
type BuildTask struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Inputs    []string `json:"inputs"`  // artifact references
	Outputs   []string `json:"outputs"` // relative file paths this task may write
	Deps      []string `json:"deps"`    // BuildTask ids this task depends on
	MaxTokens int64    `json:"max_tokens"`
}

// Plan is produced by the Planning phase. Its BuildTask dependency graph must
// be a DAG and its scout topics must be deduplicated by title.
type Plan struct {
	ScoutTopics []ScoutTopic `json:"scout_topics"`
	BuildTasks  []BuildTask  `json:"build_tasks"`
	// EstimatedTokens is the estimated token cost per item, keyed by item
	// title (scout topic) or id (build task).
	EstimatedTokens map[string]int64 `json:"estimated_tokens"`
}

// Validate checks the Plan invariants: the scout topic list is
// deduplicated by title, the build-task dependency graph is a DAG, and no two
// build tasks declare overlapping outputs.
func (p *Plan) Validate() error {
	seenTopics := make(map[string]bool, len(p.ScoutTopics))
	for _, t := range p.ScoutTopics {
		if seenTopics[t.Title] {
			return fmt.Errorf("plan: duplicate scout topic title %q", t.Title)
		}
		seenTopics[t.Title] = true
	}

	ids := make(map[string]bool, len(p.BuildTasks))
	for _, bt := range p.BuildTasks {
		if ids[bt.ID] {
			return fmt.Errorf("plan: duplicate build task id %q", bt.ID)
		}
		ids[bt.ID] = true
	}
	for _, bt := range p.BuildTasks {
		for _, dep := range bt.Deps {
			if !ids[dep] {
				return fmt.Errorf("plan: build task %q depends on unknown task %q", bt.ID, dep)
			}
		}
	}
	if cyc := findCycle(p.BuildTasks); cyc != "" {
		return fmt.Errorf("plan: build task dependency cycle through %q", cyc)
	}

	seenOutputs := make(map[string]string, len(p.BuildTasks)*2)
	for _, bt := range p.BuildTasks {
		for _, out := range bt.Outputs {
			if owner, ok := seenOutputs[out]; ok {
				return fmt.Errorf("plan: output %q claimed by both %q and %q", out, owner, bt.ID)
			}
			seenOutputs[out] = bt.ID
		}
	}
	return nil
}

// findCycle returns the id of a task participating in a dependency cycle, or
// "" if the graph is acyclic.
func findCycle(tasks []BuildTask) string {
	byID := make(map[string]BuildTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	var cycleAt string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range byID[id].Deps {
			switch color[dep] {
			case gray:
				cycleAt = dep
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, t := range tasks {
		if color[t.ID] == white {
			if visit(t.ID) {
				return cycleAt
			}
		}
	}
	return ""
}

// ReadyTasks returns the ids of tasks in tasks whose dependencies are all
// present in succeeded, sorted lexicographically by BuildTask.ID — the
// tiebreak order used for simultaneous readiness.
func ReadyTasks(tasks []BuildTask, succeeded map[string]bool) []string {
	var ready []string
	for _, t := range tasks {
		if succeeded[t.ID] {
			continue
		}
		allDepsDone := true
		for _, dep := range t.Deps {
			if !succeeded[dep] {
				allDepsDone = false
				break
			}
		}
		if allDepsDone {
			ready = append(ready, t.ID)
		}
	}
	sort.Strings(ready)
	return ready
}
