// Package phase implements the PhaseRunner: the driver that
// takes one phase through compaction-check, cache-check, provider-call, and
// artifact/state recording, generalized from internal/agent.Agent.Run's
// single-call loop into a cache-then-budget-then-compact sequence.
package phase

import (
	"context"
	"errors"
	"fmt"
	"time"

	fcontext "github.com/context-foundry/core/internal/context"
	"github.com/context-foundry/core/internal/eventbus"
	"github.com/context-foundry/core/internal/ferrors"
	"github.com/context-foundry/core/internal/provider"
	"github.com/context-foundry/core/internal/tokens"
	"github.com/context-foundry/core/pkg/model"

	budgetpkg "github.com/context-foundry/core/internal/budget"
	cachepkg "github.com/context-foundry/core/internal/cache"
)

// Input bundles everything one phase run needs: a cache identity, a prompt,
// and the bookkeeping phase it bills tokens against. Callers assemble Input
// from the plan slice and prior artifacts the phase needs before calling
// Run.
type Input struct {
	// Phase is the Orchestrator state this run belongs to (used as the
	// event's phase_id).
	Phase model.Phase
	// BudgetPhase is the allocation bucket this run bills against.
	BudgetPhase model.BudgetPhase
	// NormalizedInputs and ModelFingerprint together form the cache key
	// (internal/cache.Key); NormalizedInputs is normally a stable
	// serialization of the prompt plus prior-artifact references.
	NormalizedInputs string
	ModelFingerprint string
	// Assemble builds the provider request to make on a cache miss. It is
	// called fresh for each provider call, so a post-compaction retry sees
	// updated context.
	Assemble func() provider.Request
	// ArtifactTTL is stamped onto the artifact written to cache.
	ArtifactTTL time.Duration
}

// Runner drives a single phase invocation through its cache-check,
// compact-if-needed, provider-call, budget-check, and cache-write steps. It
// holds no per-task state itself; callers construct one per task from that
// task's own ContextManager, BudgetMonitor, and EventBus.
type Runner struct {
	cache    *cachepkg.Cache
	ctxMgr   *fcontext.Manager
	monitor  *budgetpkg.Monitor
	client   *provider.Client
	bus      *eventbus.Bus
	tracker  *tokens.Tracker
}

// New builds a Runner from the collaborators one phase execution needs.
func New(cache *cachepkg.Cache, ctxMgr *fcontext.Manager, monitor *budgetpkg.Monitor, client *provider.Client, bus *eventbus.Bus, tracker *tokens.Tracker) *Runner {
	return &Runner{cache: cache, ctxMgr: ctxMgr, monitor: monitor, client: client, bus: bus, tracker: tracker}
}

// Run executes the cache-then-budget-then-compact sequence and returns the
// resulting artifact alongside the PhaseState record for it.
func (r *Runner) Run(ctx context.Context, in Input) (model.Artifact, model.PhaseState, error) {
	state := model.PhaseState{PhaseID: in.Phase, Status: model.PhaseStatusRunning, StartedAt: time.Now()}

	// Step 2: consult the ContextManager before doing anything else.
	if r.ctxMgr != nil {
		if stop, reason := r.ctxMgr.ShouldEmergencyStop(); stop {
			state.Status = model.PhaseStatusFailed
			state.EndedAt = time.Now()
			return model.Artifact{}, state, fmt.Errorf("%w: %s", ferrors.ErrContextEmergencyStop, reason)
		}
		if r.ctxMgr.ShouldCompact() {
			r.compact(ctx, in)
		}
	}

	// Step 3: cache check.
	key := cachepkg.Key(in.BudgetPhase, in.NormalizedInputs, in.ModelFingerprint)
	if r.cache != nil {
		if artifact, hit := r.cache.Get(in.BudgetPhase, key); hit {
			r.emit(in.Phase, model.EventPhaseChange, map[string]interface{}{
				"budget_phase":          string(in.BudgetPhase),
				"cache":                 "hit",
				"skipped_due_to_cache":  true,
			})
			state.Status = model.PhaseStatusSucceeded
			state.EndedAt = time.Now()
			return *artifact, state, nil
		}
	}

	// Steps 4-5, with one compact-and-retry on a budget breach.
	artifact, compactedForBudget, err := r.callProvider(ctx, in, key, false)
	if err != nil && errors.Is(err, ferrors.ErrBudgetExceeded) && !compactedForBudget {
		r.compact(ctx, in)
		artifact, _, err = r.callProvider(ctx, in, key, true)
	}
	if err != nil {
		state.Status = model.PhaseStatusFailed
		state.EndedAt = time.Now()
		return model.Artifact{}, state, err
	}

	state.Status = model.PhaseStatusSucceeded
	state.EndedAt = time.Now()
	state.Ledger = model.PhaseUsage{InputTokens: artifact.TokenCount}
	return artifact, state, nil
}

// callProvider assembles the prompt, calls the provider, records usage
// against the BudgetMonitor, and (on a miss) writes the result to cache. It
// reports ferrors.ErrBudgetExceeded when the post-call zone is over_budget so
// Run can compact and retry exactly once.
func (r *Runner) callProvider(ctx context.Context, in Input, key string, alreadyCompacted bool) (model.Artifact, bool, error) {
	req := in.Assemble()

	resp, err := r.client.Complete(ctx, in.BudgetPhase, req)
	if err != nil {
		return model.Artifact{}, alreadyCompacted, err
	}

	if r.tracker != nil {
		r.tracker.RecordHard(tokens.Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens})
	}

	var zone model.Zone
	if r.monitor != nil {
		result := r.monitor.Check(in.BudgetPhase, resp.InputTokens+resp.OutputTokens)
		zone = result.Zone
		if len(result.Warnings) > 0 {
			r.emit(in.Phase, model.EventContextUpdate, map[string]interface{}{
				"budget_phase": string(in.BudgetPhase),
				"zone":         string(zone),
				"warnings":     result.Warnings,
			})
		}
	}

	artifact := model.Artifact{
		Key:            key,
		Phase:          in.BudgetPhase,
		Data:           []byte(resp.Text),
		CreatedAt:      time.Now(),
		TTL:            in.ArtifactTTL,
		TokenCount:     resp.InputTokens + resp.OutputTokens,
		SourceProvider: resp.ProviderID,
		SourceModel:    req.Model,
	}

	if zone == model.ZoneOverBudget {
		if alreadyCompacted {
			return artifact, alreadyCompacted, fmt.Errorf("%w: %s still over its allocation after forced compaction", ferrors.ErrBudgetExceeded, in.BudgetPhase)
		}
		return artifact, alreadyCompacted, fmt.Errorf("%w: %s exceeded its allocation", ferrors.ErrBudgetExceeded, in.BudgetPhase)
	}

	// Step 6: write the artifact to cache.
	if r.cache != nil {
		if cerr := r.cache.Put(in.BudgetPhase, key, artifact); cerr != nil {
			r.emit(in.Phase, model.EventLog, map[string]interface{}{"msg": "artifact cache write failed", "error": cerr.Error()})
		}
	}

	r.emit(in.Phase, model.EventPhaseChange, map[string]interface{}{
		"budget_phase":         string(in.BudgetPhase),
		"cache":                "miss",
		"skipped_due_to_cache": false,
		"zone":                 string(zone),
	})

	return artifact, alreadyCompacted, nil
}

// compact runs one ContextManager.Compact pass and surfaces its outcome as a
// context_update event, using the degraded=true reporting convention.
func (r *Runner) compact(ctx context.Context, in Input) {
	if r.ctxMgr == nil {
		return
	}
	result := r.ctxMgr.Compact(ctx)
	r.emit(in.Phase, model.EventContextUpdate, map[string]interface{}{
		"budget_phase": string(in.BudgetPhase),
		"accepted":     result.Accepted,
		"degraded":     result.Degraded,
		"reason_skip":  result.ReasonSkip,
	})
}

func (r *Runner) emit(phaseID model.Phase, kind model.EventKind, payload map[string]interface{}) {
	if r.bus == nil {
		return
	}
	_, _ = r.bus.Emit(phaseID, kind, payload)
}

