package model

import "time"

// Zone classifies context-window utilization into smart/dumb/critical/over_budget bands.
type Zone string

const (
	ZoneSmart      Zone = "smart"
	ZoneDumb       Zone = "dumb"
	ZoneCritical   Zone = "critical"
	ZoneOverBudget Zone = "over_budget"
)

// PhaseUsage is the running token/cost totals for one phase.
type PhaseUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	CostMinorUnits int64 `json:"cost_minor_units"`
}

// Total returns InputTokens + OutputTokens.
func (u PhaseUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add returns u with delta's counts added commutatively — callers may apply
// concurrent deltas in any order.
func (u PhaseUsage) Add(delta PhaseUsage) PhaseUsage {
	return PhaseUsage{
		InputTokens:    u.InputTokens + delta.InputTokens,
		OutputTokens:   u.OutputTokens + delta.OutputTokens,
		CostMinorUnits: u.CostMinorUnits + delta.CostMinorUnits,
	}
}

// TokenLedger is the sum of input/output tokens and cost, per phase and
// total.
type TokenLedger struct {
	Phases map[BudgetPhase]PhaseUsage `json:"phases"`
	Total  PhaseUsage                 `json:"total"`
}

// NewTokenLedger returns an empty ledger ready for use.
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{Phases: make(map[BudgetPhase]PhaseUsage)}
}

// Add records delta against phase and the running total.
func (l *TokenLedger) Add(phase BudgetPhase, delta PhaseUsage) {
	if l.Phases == nil {
		l.Phases = make(map[BudgetPhase]PhaseUsage)
	}
	l.Phases[phase] = l.Phases[phase].Add(delta)
	l.Total = l.Total.Add(delta)
}

// PhaseState is the lifecycle record the Orchestrator keeps for one phase
// execution.
type PhaseState struct {
	PhaseID   Phase       `json:"phase_id"`
	Status    PhaseStatus `json:"status"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at,omitempty"`
	ItemsIn   int         `json:"items_in"`
	ItemsOut  int         `json:"items_out"`
	Ledger    PhaseUsage  `json:"token_ledger"`
}
