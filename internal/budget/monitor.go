// Package budget implements the BudgetMonitor: per-phase token allocation
// and usage-zone classification. It is adapted from internal/orchestrator's
// single-pool BudgetHandler, generalized from one flat budget to a per-phase
// allocation table and a smart/dumb/critical zone model in place of the
// prior three-state OK/Warning/Exhausted model.
package budget

import (
	"sync"

	"github.com/context-foundry/core/pkg/model"
)

// DefaultAllocationPct is the default percentage-of-window split across the
// standard phases. It intentionally does not sum to 100 — the remainder is
// headroom: allocations that do not sum to 100% leave that much unassigned.
var DefaultAllocationPct = map[model.BudgetPhase]float64{
	model.BudgetSystem:        15,
	model.BudgetScout:         7,
	model.BudgetArchitect:     7,
	model.BudgetBuilder:       20,
	model.BudgetValidator:     20,
	model.BudgetHeal:          10,
	model.BudgetDocumentation: 5,
	model.BudgetDeploy:        3,
	model.BudgetFeedback:      5,
}

// Profile names an allocation table. Name lookup happens in
// config.Config.Profile; New uses DefaultAllocationPct whenever Pct is nil.
type Profile struct {
	Name  string
	Pct   map[model.BudgetPhase]float64
}

// CheckResult is the outcome of Monitor.Check.
type CheckResult struct {
	Zone            model.Zone
	Warnings        []string
	Recommendations []string
}

// Monitor tracks per-phase token allocations (derived from a Profile and an
// active context window size) and classifies usage into zones.
type Monitor struct {
	mu          sync.RWMutex
	windowSize  int64
	allocations map[model.BudgetPhase]int64
}

// New builds a Monitor by allocating windowSize tokens across profile's
// percentage table. If profile.Pct is nil, DefaultAllocationPct is used.
func New(profile Profile, windowSize int64) *Monitor {
	pct := profile.Pct
	if pct == nil {
		pct = DefaultAllocationPct
	}
	return &Monitor{
		windowSize:  windowSize,
		allocations: allocate(pct, windowSize),
	}
}

// allocate returns token allocations for each phase in pct.
func allocate(pct map[model.BudgetPhase]float64, windowSize int64) map[model.BudgetPhase]int64 {
	out := make(map[model.BudgetPhase]int64, len(pct))
	for phase, p := range pct {
		out[phase] = int64(float64(windowSize) * p / 100.0)
	}
	return out
}

// Allocation returns the token allocation for phase.
func (m *Monitor) Allocation(phase model.BudgetPhase) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocations[phase]
}

// Allocations returns a copy of the full per-phase allocation table.
func (m *Monitor) Allocations() map[model.BudgetPhase]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.BudgetPhase]int64, len(m.allocations))
	for k, v := range m.allocations {
		out[k] = v
	}
	return out
}

// Check classifies used tokens against phase's allocation into a zone:
//
//	smart:       0%   <= usage < 40%
//	dumb:        40%  <= usage < 80%
//	critical:    80%  <= usage <= 100%
//	over_budget: usage > 100% of the phase allocation
//
// Zero-length inputs (used == 0, allocation == 0) classify as smart.
func (m *Monitor) Check(phase model.BudgetPhase, used int64) CheckResult {
	alloc := m.Allocation(phase)

	var pct float64
	if alloc > 0 {
		pct = float64(used) / float64(alloc) * 100
	}

	result := CheckResult{Zone: zoneFor(pct)}

	switch result.Zone {
	case model.ZoneCritical:
		result.Warnings = append(result.Warnings, "phase approaching budget exhaustion")
		result.Recommendations = append(result.Recommendations, "compact before the next prompt assembly")
	case model.ZoneOverBudget:
		result.Warnings = append(result.Warnings, "phase allocation exceeded")
		result.Recommendations = append(result.Recommendations, "force a compaction and retry once")
	}

	return result
}

func zoneFor(pct float64) model.Zone {
	switch {
	case pct > 100:
		return model.ZoneOverBudget
	case pct >= 80:
		return model.ZoneCritical
	case pct >= 40:
		return model.ZoneDumb
	default:
		return model.ZoneSmart
	}
}
