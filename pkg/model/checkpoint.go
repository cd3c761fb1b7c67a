package model

// Checkpoint is a durable snapshot of Orchestrator state sufficient for
// resumption. A checkpoint written after a transition, plus all events since
// its creation, uniquely reproduce state.
type Checkpoint struct {
	TaskID        string                 `json:"task_id"`
	Plan          *Plan                  `json:"plan,omitempty"`
	PhaseStates   []PhaseState           `json:"phase_states"`
	ContextSnapshot []ContentItem        `json:"context_snapshot"`
	Ledger        TokenLedger            `json:"ledger"`
	// Cursor identifies the next action: the phase to (re)enter and, for
	// Building, the set of BuildTask ids already succeeded.
	Cursor Cursor `json:"cursor"`
}

// Cursor identifies the next action a resumed Orchestrator should take.
type Cursor struct {
	NextPhase      Phase           `json:"next_phase"`
	SucceededTasks map[string]bool `json:"succeeded_tasks,omitempty"`
	HealAttempt    int             `json:"heal_attempt"`
	// ScoutSummary is Scouting's merged research output, carried through the
	// cursor so a crash between the Scouting checkpoint and Architecting
	// actually running doesn't force resume() to re-enter Architecting with
	// an empty summary.
	ScoutSummary string `json:"scout_summary,omitempty"`
}
