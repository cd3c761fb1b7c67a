package model

import "time"

// Pattern is a reusable, cross-project solution shape keyed by the kind of
// task it applies to. Patterns are
// ingested out of band and only ever read during a run; no component may
// write to the pattern library mid-task.
type Pattern struct {
	TaskKind    string
	PatternID   string
	Summary     string
	Template    string
	UsageCount  int
	LastUsedAt  time.Time
	CreatedAt   time.Time
}
