package context

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/context-foundry/core/pkg/model"
)

// StandardCompactionThresholdPct is the usage percentage at which a standard
// (non-forced) compaction becomes due.
const StandardCompactionThresholdPct = 40.0

// ForcedCompactionThresholdPct is the usage percentage at which compaction is
// forced regardless of the standard threshold.
const ForcedCompactionThresholdPct = 70.0

// EmergencyStopThresholdPct is the usage percentage at which the emergency
// stop trips.
const EmergencyStopThresholdPct = 80.0

// importanceBase assigns a starting importance by ContentKind, ordered
// decision/error/pattern > tool > assistant > user > system.
var importanceBase = map[model.ContentKind]float64{
	model.ContentDecision:  0.9,
	model.ContentError:     0.9,
	model.ContentPattern:   0.9,
	model.ContentTool:      0.6,
	model.ContentAssistant: 0.5,
	model.ContentUser:      0.45,
	model.ContentSystem:    0.3,
	model.ContentSummary:   0.5,
}

// importanceKeywords boosts importance when present in an item's text,
// case-insensitively: tokens like fail, error, requirement.
var importanceKeywords = []string{"fail", "error", "requirement", "must", "invariant", "deadline"}

// Metrics is returned by Track, describing the ContentItem it recorded.
type Metrics struct {
	Item       model.ContentItem
	UsagePct   float64
}

// Manager tracks one logical conversation's ContentItem array, scores new
// content, decides when to compact, and enforces the emergency stop. A
// Manager instance is never shared across workers: it belongs to exactly one
// worker or phase, and the parent Orchestrator reconciles using summaries
// returned by workers.
type Manager struct {
	mu sync.Mutex

	items     []model.ContentItem
	compactor *Compactor
	window    int64 // active context window in tokens, for usage_pct

	consecutiveFailedCompactions int
	lastCompactionAt             time.Time
	failureCount                 int
}

// NewManager builds a Manager for a fresh conversation against the given
// compactor and context window size.
func NewManager(compactor *Compactor, windowTokens int64) *Manager {
	return &Manager{compactor: compactor, window: windowTokens}
}

// Track records a new ContentItem, scoring its importance as a monotone
// function of kind with a length penalty and keyword boost, then returns
// metrics describing it.
func (m *Manager) Track(kind model.ContentKind, text string, tokenCount int64, metadata map[string]string) Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := model.ContentItem{
		Kind:       kind,
		Text:       text,
		TokenCount: tokenCount,
		CreatedAt:  time.Now(),
		Metadata:   metadata,
	}
	item.RaiseImportance(scoreImportance(kind, text, tokenCount))

	m.items = append(m.items, item)

	return Metrics{Item: item, UsagePct: m.usagePctLocked()}
}

// scoreImportance computes the base-kind score, a length penalty (longer
// items are slightly less critical on a per-token basis, since long-form
// content compacts more gracefully), and a keyword boost, capped at 1.0.
func scoreImportance(kind model.ContentKind, text string, tokenCount int64) float64 {
	score := importanceBase[kind]

	if tokenCount > 2000 {
		score -= 0.05
	}

	lower := strings.ToLower(text)
	for _, kw := range importanceKeywords {
		if strings.Contains(lower, kw) {
			score += 0.15
			break
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Items returns a copy of the currently tracked items.
func (m *Manager) Items() []model.ContentItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ContentItem{}, m.items...)
}

// UsagePct returns the current utilization of the context window.
func (m *Manager) UsagePct() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usagePctLocked()
}

func (m *Manager) usagePctLocked() float64 {
	if m.window <= 0 {
		return 0
	}
	var total int64
	for _, item := range m.items {
		total += item.TokenCount
	}
	return float64(total) / float64(m.window) * 100
}

// ShouldCompact reports whether a standard or forced compaction is due.
func (m *Manager) ShouldCompact() bool {
	usage := m.UsagePct()
	return usage >= StandardCompactionThresholdPct
}

// ShouldForceCompact reports whether usage has crossed the forced threshold,
// irrespective of when the last compaction ran.
func (m *Manager) ShouldForceCompact() bool {
	return m.UsagePct() >= ForcedCompactionThresholdPct
}

// Compact delegates to the Compactor and applies its result. On refusal or a
// reduction below 10%, the attempt is marked a failure and the consecutive
// failure counter is incremented; on success the counter resets.
func (m *Manager) Compact(ctx context.Context) Result {
	m.mu.Lock()
	items := append([]model.ContentItem{}, m.items...)
	m.mu.Unlock()

	result := m.compactor.Compact(ctx, items)

	m.mu.Lock()
	defer m.mu.Unlock()

	if result.Accepted && !result.Degraded {
		m.items = result.Kept
		m.lastCompactionAt = time.Now()
		m.consecutiveFailedCompactions = 0
		return result
	}

	if result.Accepted && result.Degraded {
		// Basic fallback made some progress; still counts as a failure of
		// the *ideal* compaction but state does advance.
		m.items = result.Kept
		m.lastCompactionAt = time.Now()
		m.consecutiveFailedCompactions++
		m.failureCount++
		return result
	}

	// Outright rejection: state unchanged, failure counted.
	m.consecutiveFailedCompactions++
	m.failureCount++
	return result
}

// ShouldEmergencyStop reports true when usage >= 80% or the last two
// compaction attempts both failed to reduce.
func (m *Manager) ShouldEmergencyStop() (bool, string) {
	usage := m.UsagePct()
	if usage >= EmergencyStopThresholdPct {
		return true, "context usage reached the emergency stop threshold"
	}

	m.mu.Lock()
	consecutive := m.consecutiveFailedCompactions
	m.mu.Unlock()

	if consecutive >= 2 {
		return true, "last two compaction attempts both failed to reduce usage"
	}
	return false, ""
}
