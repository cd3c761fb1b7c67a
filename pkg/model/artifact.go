package model

import "time"

// Artifact is an opaque, content-addressed output of a phase. Two artifacts
// sharing the same Key within TTL are interchangeable.
type Artifact struct {
	Key            string        `json:"key"`
	Phase          BudgetPhase   `json:"phase"`
	Data           []byte        `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	TTL            time.Duration `json:"ttl"`
	TokenCount     int64         `json:"token_count"`
	SourceProvider string        `json:"source_provider"`
	SourceModel    string        `json:"source_model"`
}

// Expired reports whether the artifact is no longer valid as of now.
func (a Artifact) Expired(now time.Time) bool {
	if a.TTL <= 0 {
		return false
	}
	return !now.Before(a.CreatedAt.Add(a.TTL))
}
