package model

import "time"

// Task is the immutable root object a build runs against. It is created once
// by the external driver (the CLI adapter, or any other caller of the
// command surface) and never mutated afterward.
type Task struct {
	// ID is the stable identifier for this task.
	ID string `json:"id"`
	// Description is the free-text build request.
	Description string `json:"description"`
	// TargetDirectory is the workspace the build writes into.
	TargetDirectory string `json:"target_directory"`
	// BudgetProfile names the per-phase token allocation table to use.
	BudgetProfile string `json:"budget_profile"`
	// Options holds the recognized option set.
	Options Options `json:"options"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
}

// Options is the recognized configuration set a Task carries.
type Options struct {
	Incremental             IncrementalMode   `json:"incremental" mapstructure:"incremental"`
	MaxParallelScouts       int               `json:"max_parallel_scouts" mapstructure:"max_parallel_scouts"`
	MaxParallelBuilders     int               `json:"max_parallel_builders" mapstructure:"max_parallel_builders"`
	MaxHealAttempts         int               `json:"max_heal_attempts" mapstructure:"max_heal_attempts"`
	ContextWindow           int64             `json:"context_window" mapstructure:"context_window"`
	BudgetProfile           string            `json:"budget_profile" mapstructure:"budget_profile"`
	CompactionThresholdPct  float64           `json:"compaction_threshold_pct" mapstructure:"compaction_threshold_pct"`
	EmergencyStopPct        float64           `json:"emergency_stop_pct" mapstructure:"emergency_stop_pct"`
	ArtifactTTL             time.Duration     `json:"artifact_ttl" mapstructure:"artifact_ttl"`
	ProviderRetries         int               `json:"provider_retries" mapstructure:"provider_retries"`
	ValidatorThresholds     map[string]float64 `json:"validator_thresholds" mapstructure:"validator_thresholds"`
	Deadline                time.Duration     `json:"deadline" mapstructure:"deadline"`
}

// IncrementalMode controls ArtifactCache scope.
type IncrementalMode string

const (
	IncrementalOff        IncrementalMode = "off"
	IncrementalPerProject IncrementalMode = "per-project"
	IncrementalGlobal     IncrementalMode = "global"
)

// Valid reports whether m is a known incremental mode.
func (m IncrementalMode) Valid() bool {
	switch m {
	case IncrementalOff, IncrementalPerProject, IncrementalGlobal:
		return true
	default:
		return false
	}
}

// DefaultOptions returns the recognized configuration set's default values.
func DefaultOptions() Options {
	return Options{
		Incremental:            IncrementalPerProject,
		MaxParallelScouts:      5,
		MaxParallelBuilders:    4,
		MaxHealAttempts:        3,
		ContextWindow:          200_000,
		BudgetProfile:          "default",
		CompactionThresholdPct: 40,
		EmergencyStopPct:       80,
		ArtifactTTL:            24 * time.Hour,
		ProviderRetries:        3,
		ValidatorThresholds: map[string]float64{
			"correctness": 0.8,
			"coverage":    0.7,
			"style":       0.7,
			"integration": 0.7,
			"safety":      0.7,
		},
	}
}

// ExitCondition is one of the four outcomes the core reports.
type ExitCondition string

const (
	ExitCompleted       ExitCondition = "completed"
	ExitFailed          ExitCondition = "failed"
	ExitCancelled       ExitCondition = "cancelled"
	ExitDeadlineExceeded ExitCondition = "deadline_exceeded"
)

// Status is the externally observable snapshot returned by status(task_id).
type Status struct {
	Phase        Phase         `json:"phase"`
	Ledger       TokenLedger   `json:"ledger"`
	Zone         Zone          `json:"zone"`
	LastEventSeq int64         `json:"last_event_seq"`
}
