// Package ferrors defines the orchestrator's error taxonomy. Kinds are
// sentinel errors wrapped with context via fmt.Errorf("...: %w", ...); callers
// use errors.Is/errors.As against the sentinels below rather than matching on
// message text.
package ferrors

import "errors"

var (
	// ErrConfig marks an invalid option or missing credential. Fatal,
	// surfaced immediately, never retried.
	ErrConfig = errors.New("config error")

	// ErrProviderTransient marks a rate-limit, 5xx, or transient network
	// failure from the LLM provider. Retried per the client's backoff policy.
	ErrProviderTransient = errors.New("provider transient error")

	// ErrProviderPermanent marks authentication, schema validation, or
	// unsupported-model failures. Fatal to the current call; propagated as a
	// phase failure.
	ErrProviderPermanent = errors.New("provider permanent error")

	// ErrBudgetExceeded marks a phase allocation fully consumed. Triggers one
	// forced compaction; if still exceeded, the phase fails.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrContextEmergencyStop marks the emergency-stop condition. The phase
	// is marked failed(recoverable); resume may lower the per-prompt
	// envelope and retry.
	ErrContextEmergencyStop = errors.New("context emergency stop")

	// ErrValidationFailure marks a ValidationReport under threshold. Triggers
	// healing within max_heal_attempts; otherwise the task fails.
	ErrValidationFailure = errors.New("validation failure")

	// ErrCacheIO marks an ArtifactCache read/write failure. Degrades to a
	// cache miss and is surfaced via a log event; never fatal by itself.
	ErrCacheIO = errors.New("cache io error")

	// ErrCheckpointIO marks a CheckpointStore read/write failure. Degraded to
	// log-only; never fatal by itself.
	ErrCheckpointIO = errors.New("checkpoint io error")

	// ErrDeadlineExceeded marks cooperative termination from a wall-clock
	// deadline. Partial results are preserved.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrCancelled marks cooperative termination from an explicit cancel().
	// Partial results are preserved.
	ErrCancelled = errors.New("cancelled")
)

// Recoverable reports whether err represents a condition from which resume()
// can make forward progress.
func Recoverable(err error) bool {
	switch {
	case errors.Is(err, ErrContextEmergencyStop),
		errors.Is(err, ErrBudgetExceeded),
		errors.Is(err, ErrValidationFailure),
		errors.Is(err, ErrCacheIO),
		errors.Is(err, ErrCheckpointIO),
		errors.Is(err, ErrProviderTransient),
		errors.Is(err, ErrDeadlineExceeded),
		errors.Is(err, ErrCancelled):
		return true
	default:
		return false
	}
}

// Fatal reports whether err must terminate the task immediately without
// resume. Only ErrConfig and unrecoverable internal invariants qualify.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfig)
}
