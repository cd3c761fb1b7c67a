// Package main is the CLI adapter for the orchestrator core: a thin process
// boundary that turns start/resume/status/events/cancel into calls against
// internal/orchestrator.Orchestrator. Nothing in this package holds
// orchestration logic; it only wires collaborators and maps results to
// process exit codes.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/context-foundry/core/internal/budget"
	"github.com/context-foundry/core/internal/cache"
	"github.com/context-foundry/core/internal/checkpoint"
	"github.com/context-foundry/core/internal/config"
	fcontext "github.com/context-foundry/core/internal/context"
	"github.com/context-foundry/core/internal/eventbus"
	"github.com/context-foundry/core/internal/orchestrator"
	"github.com/context-foundry/core/internal/patternstore"
	"github.com/context-foundry/core/internal/phase"
	"github.com/context-foundry/core/internal/provider"
	"github.com/context-foundry/core/internal/tokens"
	"github.com/context-foundry/core/internal/validator"
	"github.com/context-foundry/core/pkg/model"
)

// defaultModel is the Anthropic model every collaborator adapter targets.
// The orchestrator core itself is model-agnostic; a future release may make
// this a per-phase option, but today one model serves every phase.
const defaultModel = "claude-sonnet-4-5-20250929"

// runtime bundles every long-lived collaborator one Orchestrator.Run call
// needs, plus the handles a caller must close or clean up afterward.
type runtime struct {
	machine *orchestrator.Orchestrator
	bus     *eventbus.Bus
	ledger  *model.TokenLedger
}

// buildRuntime wires one task's full collaborator graph: event log, cache,
// pattern library, provider client, context manager, budget monitor, phase
// runner, and the six LLM-backed Orchestrator collaborators. The returned
// cleanup closes every handle opened here and clears this task's cancel
// marker.
func buildRuntime(cfg *config.Config, task model.Task) (*runtime, func(), error) {
	opts := task.Options
	root := task.TargetDirectory

	bus, err := eventbus.New(root, task.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("foundry: open event bus: %w", err)
	}

	checkpoints := checkpoint.New(root)

	cacheLogger := func(msg string, err error) {
		_, _ = bus.Emit("", model.EventLog, map[string]interface{}{"component": "cache", "msg": msg, "error": errString(err)})
	}
	artifactCache := cache.New(root, opts.Incremental, cacheLogger)

	patterns, err := patternstore.Open(patternstore.ProjectDBPath(root))
	if err != nil {
		return nil, nil, fmt.Errorf("foundry: open pattern store: %w", err)
	}

	backend, err := provider.NewAnthropicBackend(provider.AnthropicConfig{
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		patterns.Close()
		bus.Close()
		return nil, nil, fmt.Errorf("foundry: configure anthropic backend: %w", err)
	}

	ledger := model.NewTokenLedger()
	tracker := tokens.NewTracker()

	retry := provider.DefaultRetryPolicy()
	if opts.ProviderRetries > 0 {
		retry.MaxAttempts = opts.ProviderRetries
	}

	eventLogger := func(kind model.EventKind, payload map[string]interface{}) {
		_, _ = bus.Emit("", kind, payload)
	}
	client := provider.New(backend, nil, retry, ledger, tracker, eventLogger)

	meter := tokens.New(nil)
	estimateTokens := func(text string) int64 { return meter.Estimate(text, defaultModel).Tokens }

	summarizer := &llmSummarizer{client: client, model: defaultModel}
	compactor := fcontext.New(summarizer, estimateTokens, nil)
	ctxMgr := fcontext.NewManager(compactor, opts.ContextWindow)

	monitor := budget.New(cfg.Profile(task.BudgetProfile), opts.ContextWindow)
	runner := phase.New(artifactCache, ctxMgr, monitor, client, bus, tracker)

	scorer := &llmScorer{client: client, model: defaultModel}
	vcfg := validator.DefaultConfig()
	if opts.ValidatorThresholds != nil {
		vcfg.Thresholds = make(map[model.RubricDimension]float64, len(opts.ValidatorThresholds))
		for k, v := range opts.ValidatorThresholds {
			vcfg.Thresholds[model.RubricDimension(k)] = v
		}
	}

	machine := orchestrator.New(
		&llmPlanner{runner: runner, model: defaultModel},
		&llmScouter{runner: runner, model: defaultModel, patterns: patterns},
		&llmArchitect{runner: runner, model: defaultModel},
		&llmBuilder{runner: runner, model: defaultModel, rootDir: root},
		&planValidator{v: validator.New(scorer, vcfg), rootDir: root},
		&llmHealer{runner: runner, model: defaultModel},
		checkpoints,
		bus,
		orchestrator.Config{
			MaxParallelScouts:   opts.MaxParallelScouts,
			MaxParallelBuilders: opts.MaxParallelBuilders,
			MaxHealAttempts:     opts.MaxHealAttempts,
		},
	).WithLedger(ledger).WithContextSnapshot(ctxMgr.Items)

	cleanup := func() {
		patterns.Close()
		bus.Close()
		os.Remove(cancelMarkerPath(root, task.ID))
	}

	return &runtime{machine: machine, bus: bus, ledger: ledger}, cleanup, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// newTaskID mints a fresh task identifier for start().
func newTaskID() string {
	return uuid.New().String()
}

// budgetPhaseFor maps an Orchestrator Phase to the BudgetPhase bucket its
// work bills against, for status() reporting against a loaded checkpoint
// where no live Monitor is running.
func budgetPhaseFor(p model.Phase) model.BudgetPhase {
	switch p {
	case model.PhaseScouting:
		return model.BudgetScout
	case model.PhaseArchitecting:
		return model.BudgetArchitect
	case model.PhaseBuilding:
		return model.BudgetBuilder
	case model.PhaseValidating:
		return model.BudgetValidator
	case model.PhaseHealing:
		return model.BudgetHeal
	default:
		return model.BudgetSystem
	}
}

// cancelMarkerPath is the cooperative-cancellation signal file a running
// task's context polls for, and `foundry cancel` creates.
func cancelMarkerPath(root, taskID string) string {
	return filepath.Join(root, ".state", "cancel", taskID)
}

// exitCodeFor maps an ExitCondition to a process exit code.
func exitCodeFor(exit model.ExitCondition) int {
	switch exit {
	case model.ExitCompleted:
		return 0
	case model.ExitCancelled:
		return 2
	case model.ExitDeadlineExceeded:
		return 3
	default:
		return 1
	}
}

// resolveTargetDir returns dir if non-empty, else the process cwd.
func resolveTargetDir(dir string) (string, error) {
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("foundry: resolve target directory: %w", err)
		}
		return abs, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("foundry: get working directory: %w", err)
	}
	return cwd, nil
}
