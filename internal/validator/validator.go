// Package validator implements the Validator: scores an
// artifact against the fixed five-dimension rubric, averaging over k
// non-deterministic attempts and deriving FixTasks for any dimension that
// falls short, generalized from internal/validation.Validator's 4-layer
// sequence and internal/api.Verifier's tiered judge-prompt pattern.
package validator

import (
	"context"
	"fmt"

	"github.com/context-foundry/core/pkg/model"
)

// Scorer is the judging collaborator: one call scores a single attempt
// against every rubric dimension and, for any failing dimension, proposes a
// FixTask. Production wiring wraps internal/provider.Client with a rubric
// prompt, following Verifier.verifyWithJudge's pattern; tests substitute a
// stub.
type Scorer interface {
	Score(ctx context.Context, artifactKey, content string) (scores map[model.RubricDimension]float64, failures []model.FixTask, err error)
}

// Config bounds how many independent attempts are averaged and what
// thresholds a ValidationReport must clear.
type Config struct {
	// Attempts is k in k-attempt averaging. 1 disables averaging and
	// variance tracking.
	Attempts int
	// Thresholds overrides the default per-dimension pass thresholds; see
	// model.ValidationReport.Passes for the fallback values.
	Thresholds map[model.RubricDimension]float64
}

// DefaultConfig returns a single-attempt configuration with default
// thresholds.
func DefaultConfig() Config {
	return Config{Attempts: 1}
}

// Validator runs Config.Attempts independent Scorer calls against one
// artifact and reduces them to a single ValidationReport.
type Validator struct {
	scorer Scorer
	cfg    Config
}

// New returns a Validator. cfg.Attempts below 1 is treated as 1.
func New(scorer Scorer, cfg Config) *Validator {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Validator{scorer: scorer, cfg: cfg}
}

// Validate scores content k times, averages each dimension, records
// per-dimension variance when k > 1, and collects the union of FixTasks
// surfaced by any attempt (deduplicated by artifact+dimension). It returns
// the report, or the first Scorer error; Passes checks a report against the
// configured thresholds.
func (v *Validator) Validate(ctx context.Context, artifactKey, content string) (model.ValidationReport, error) {
	sums := make(map[model.RubricDimension]float64, len(model.AllDimensions))
	sumsSq := make(map[model.RubricDimension]float64, len(model.AllDimensions))
	seenFixes := make(map[string]bool)
	var failures []model.FixTask

	for attempt := 0; attempt < v.cfg.Attempts; attempt++ {
		scores, attemptFailures, err := v.scorer.Score(ctx, artifactKey, content)
		if err != nil {
			return model.ValidationReport{}, fmt.Errorf("validator: attempt %d: %w", attempt, err)
		}
		for _, dim := range model.AllDimensions {
			s := scores[dim]
			sums[dim] += s
			sumsSq[dim] += s * s
		}
		for _, f := range attemptFailures {
			key := f.ArtifactKey + "|" + string(f.Dimension)
			if seenFixes[key] {
				continue
			}
			seenFixes[key] = true
			failures = append(failures, f)
		}
	}

	n := float64(v.cfg.Attempts)
	report := model.ValidationReport{
		Scores:   make(map[model.RubricDimension]float64, len(model.AllDimensions)),
		Failures: failures,
	}
	if v.cfg.Attempts > 1 {
		report.Variance = make(map[model.RubricDimension]float64, len(model.AllDimensions))
	}

	var overallSum float64
	for _, dim := range model.AllDimensions {
		mean := sums[dim] / n
		report.Scores[dim] = mean
		overallSum += mean
		if v.cfg.Attempts > 1 {
			// population variance: E[x^2] - E[x]^2
			report.Variance[dim] = sumsSq[dim]/n - mean*mean
		}
	}
	report.Overall = overallSum / float64(len(model.AllDimensions))

	return report, nil
}

// Passes reports whether report clears v's configured thresholds.
func (v *Validator) Passes(report model.ValidationReport) bool {
	return report.Passes(v.cfg.Thresholds)
}
