package model

import "time"

// ContentKind is the closed set of ContentItem kinds tracked by the
// ContextManager — enumerable constants instead of free-form strings.
type ContentKind string

const (
	ContentSystem    ContentKind = "system"
	ContentUser      ContentKind = "user"
	ContentAssistant ContentKind = "assistant"
	ContentTool      ContentKind = "tool"
	ContentDecision  ContentKind = "decision"
	ContentError     ContentKind = "error"
	ContentPattern   ContentKind = "pattern"
	ContentSummary   ContentKind = "summary"
)

// Valid reports whether k is a recognized content kind.
func (k ContentKind) Valid() bool {
	switch k {
	case ContentSystem, ContentUser, ContentAssistant, ContentTool,
		ContentDecision, ContentError, ContentPattern, ContentSummary:
		return true
	default:
		return false
	}
}

// Critical reports whether items of this kind are always preserved by a
// Compactor pass, independent of importance or recency.
func (k ContentKind) Critical() bool {
	switch k {
	case ContentDecision, ContentError, ContentPattern:
		return true
	default:
		return false
	}
}

// ContentItem is a unit tracked by the ContextManager. Importance is
// monotone-nondecreasing across the item's lifetime — once raised it is
// never lowered.
type ContentItem struct {
	Kind       ContentKind            `json:"kind"`
	Text       string                 `json:"text"`
	TokenCount int64                  `json:"token_count"`
	Importance float64                `json:"importance"`
	CreatedAt  time.Time              `json:"created_at"`
	Metadata   map[string]string      `json:"metadata,omitempty"`
}

// RaiseImportance sets c.Importance to the larger of its current value and v,
// enforcing the monotone-nondecreasing invariant, and clamps to [0,1].
func (c *ContentItem) RaiseImportance(v float64) {
	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	if v > c.Importance {
		c.Importance = v
	}
}
