// Package orchestrator coordinates a build task through a six-phase state
// machine: Planning -> Scouting -> Architecting -> Building -> Validating ->
// (Healing -> Building)* -> Completed | Failed. Orchestrator drives that
// machine by delegating each phase to an injected collaborator (Planner,
// Scouter, Architect, Builder, Validator, Healer), fanning Scouting and
// Building out across a bounded workerpool, and checkpointing after every
// phase transition so Run can resume a task from its last completed phase.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/context-foundry/core/internal/checkpoint"
	"github.com/context-foundry/core/internal/eventbus"
	"github.com/context-foundry/core/internal/ferrors"
	"github.com/context-foundry/core/internal/workerpool"
	"github.com/context-foundry/core/pkg/model"
)

// Planner produces the initial Plan (scout topics; build tasks are filled in
// by Architect once scouting completes).
type Planner interface {
	Plan(ctx context.Context, task model.Task) (model.Plan, error)
}

// Scouter researches one topic and returns a compressed summary plus the
// token count it cost to produce. Scout job outputs are summarized to <=25%
// of raw before being merged into architect input.
type Scouter interface {
	Scout(ctx context.Context, topic model.ScoutTopic) (summary string, tokens int64, err error)
}

// Architect turns the scouted aggregate into the ordered BuildTask list.
type Architect interface {
	Architect(ctx context.Context, plan model.Plan, scoutSummary string) ([]model.BuildTask, error)
}

// Builder executes one BuildTask and returns the artifact it produced.
type Builder interface {
	Build(ctx context.Context, task model.BuildTask) (model.Artifact, error)
}

// Validator produces a ValidationReport for the current state of the build.
type Validator interface {
	Validate(ctx context.Context, plan model.Plan) (model.ValidationReport, error)
}

// Healer turns a ValidationReport's failures into a revised set of BuildTasks
// restricted to the affected outputs; the machine re-enters Building with
// only those tasks.
type Healer interface {
	Heal(ctx context.Context, failures []model.FixTask) ([]model.BuildTask, error)
}

// Config bounds Orchestrator's concurrency and healing budget.
type Config struct {
	MaxParallelScouts   int
	MaxParallelBuilders int
	MaxHealAttempts     int
}

// DefaultConfig mirrors model.DefaultOptions' machine-relevant fields.
func DefaultConfig() Config {
	return Config{MaxParallelScouts: 5, MaxParallelBuilders: 4, MaxHealAttempts: 3}
}

// Orchestrator drives one task through the six-phase state machine. It holds
// no task-specific state between Run calls; Run reconstructs everything it
// needs from the checkpoint (if any) plus the collaborators supplied here.
type Orchestrator struct {
	planner   Planner
	scouter   Scouter
	architect Architect
	builder   Builder
	validator Validator
	healer    Healer

	checkpoints *checkpoint.Store
	bus         *eventbus.Bus
	cfg         Config
	// ledger, when set, is the shared TokenLedger the caller's provider.Client
	// accumulates into; checkpoint snapshots read its current value directly
	// rather than tracking a stale local copy.
	ledger *model.TokenLedger
	// snapshot, when set, returns the caller's ContextManager's current
	// ContentItems so checkpoint() can persist a compact context snapshot
	// alongside the phase/ledger/cursor state.
	snapshot func() []model.ContentItem
}

// WithLedger attaches the shared TokenLedger checkpoints should snapshot.
func (m *Orchestrator) WithLedger(ledger *model.TokenLedger) *Orchestrator {
	m.ledger = ledger
	return m
}

// WithContextSnapshot attaches the function checkpoint() calls to obtain the
// ContentItems to persist as ContextSnapshot.
func (m *Orchestrator) WithContextSnapshot(snapshot func() []model.ContentItem) *Orchestrator {
	m.snapshot = snapshot
	return m
}

// New builds an Orchestrator. Any collaborator may be nil if the corresponding
// phase is never reached (e.g. a Healer is optional when max_heal_attempts
// is 0).
func New(planner Planner, scouter Scouter, architect Architect, builder Builder, validator Validator, healer Healer, checkpoints *checkpoint.Store, bus *eventbus.Bus, cfg Config) *Orchestrator {
	if cfg.MaxParallelScouts <= 0 {
		cfg.MaxParallelScouts = 5
	}
	if cfg.MaxParallelBuilders <= 0 {
		cfg.MaxParallelBuilders = 4
	}
	return &Orchestrator{
		planner: planner, scouter: scouter, architect: architect, builder: builder,
		validator: validator, healer: healer,
		checkpoints: checkpoints, bus: bus, cfg: cfg,
	}
}

// run carries the mutable state threaded through one Orchestrator.Run call.
type run struct {
	taskID      string
	task        model.Task
	plan        model.Plan
	succeeded   map[string]bool
	artifacts   map[string]model.Artifact
	scoutSum    string
	healAtt     int
	ledger      model.TokenLedger
	failures    []model.FixTask
	phaseStates []model.PhaseState
	// healTier counts, per (ArtifactKey, Dimension) fix target, how many
	// times Healing has already been asked to fix it, so a target that keeps
	// failing can be escalated to a stronger fix kind and eventually aborted
	// instead of looping on the same unresolvable failure forever.
	healTier map[string]int
}

// recordPhase appends (or, on a repeat visit such as Healing -> Building,
// replaces) this phase's PhaseState so checkpoint() always persists the
// current status of every phase reached so far.
func (r *run) recordPhase(phaseID model.Phase, status model.PhaseStatus, startedAt time.Time) {
	state := model.PhaseState{PhaseID: phaseID, Status: status, StartedAt: startedAt, EndedAt: time.Now()}
	for i, existing := range r.phaseStates {
		if existing.PhaseID == phaseID {
			r.phaseStates[i] = state
			return
		}
	}
	r.phaseStates = append(r.phaseStates, state)
}

// Run executes task to completion (or failure), resuming from the last
// checkpoint for taskID when one exists. It never re-executes a BuildTask
// recorded as succeeded in a loaded checkpoint.
func (m *Orchestrator) Run(ctx context.Context, taskID string, task model.Task) (model.ExitCondition, error) {
	r := &run{taskID: taskID, task: task, succeeded: map[string]bool{}, artifacts: map[string]model.Artifact{}, healTier: map[string]int{}}
	cur := model.PhasePlanning

	if m.checkpoints != nil {
		if cp, err := m.checkpoints.Load(taskID); err == nil && cp != nil {
			if cp.Plan != nil {
				r.plan = *cp.Plan
			}
			if cp.Cursor.SucceededTasks != nil {
				r.succeeded = cp.Cursor.SucceededTasks
			}
			r.healAtt = cp.Cursor.HealAttempt
			r.scoutSum = cp.Cursor.ScoutSummary
			r.ledger = cp.Ledger
			r.phaseStates = cp.PhaseStates
			if cp.Cursor.NextPhase.Valid() {
				cur = cp.Cursor.NextPhase
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return model.ExitCancelled, fmt.Errorf("%w: %v", ferrors.ErrCancelled, ctx.Err())
		default:
		}

		phaseStart := time.Now()

		switch cur {
		case model.PhasePlanning:
			plan, err := m.planner.Plan(ctx, task)
			if err != nil {
				r.recordPhase(model.PhasePlanning, model.PhaseStatusFailed, phaseStart)
				m.emit(model.PhasePlanning, model.EventPhaseChange, map[string]interface{}{"status": "failed", "error": err.Error()})
				return model.ExitFailed, fmt.Errorf("orchestrator: planning: %w", err)
			}
			if err := plan.Validate(); err != nil {
				r.recordPhase(model.PhasePlanning, model.PhaseStatusFailed, phaseStart)
				m.emit(model.PhasePlanning, model.EventPhaseChange, map[string]interface{}{"status": "failed", "error": err.Error()})
				return model.ExitFailed, fmt.Errorf("orchestrator: planning produced an invalid plan: %w", err)
			}
			r.plan = plan
			r.recordPhase(model.PhasePlanning, model.PhaseStatusSucceeded, phaseStart)
			m.emit(model.PhasePlanning, model.EventPhaseChange, map[string]interface{}{"status": "succeeded"})
			cur = model.PhaseScouting
			m.checkpoint(r, cur)

		case model.PhaseScouting:
			summary, err := m.scout(ctx, r)
			if err != nil {
				r.recordPhase(model.PhaseScouting, model.PhaseStatusFailed, phaseStart)
				m.emit(model.PhaseScouting, model.EventPhaseChange, map[string]interface{}{"status": "failed", "error": err.Error()})
				return model.ExitFailed, fmt.Errorf("orchestrator: scouting: %w", err)
			}
			r.scoutSum = summary
			r.recordPhase(model.PhaseScouting, model.PhaseStatusSucceeded, phaseStart)
			m.emit(model.PhaseScouting, model.EventPhaseChange, map[string]interface{}{"status": "succeeded"})
			cur = model.PhaseArchitecting
			m.checkpoint(r, cur)

		case model.PhaseArchitecting:
			tasks, err := m.architect.Architect(ctx, r.plan, r.scoutSum)
			if err != nil {
				r.recordPhase(model.PhaseArchitecting, model.PhaseStatusFailed, phaseStart)
				m.emit(model.PhaseArchitecting, model.EventPhaseChange, map[string]interface{}{"status": "failed", "error": err.Error()})
				return model.ExitFailed, fmt.Errorf("orchestrator: architecting: %w", err)
			}
			r.plan.BuildTasks = tasks
			if err := r.plan.Validate(); err != nil {
				r.recordPhase(model.PhaseArchitecting, model.PhaseStatusFailed, phaseStart)
				m.emit(model.PhaseArchitecting, model.EventPhaseChange, map[string]interface{}{"status": "failed", "error": err.Error()})
				return model.ExitFailed, fmt.Errorf("orchestrator: architecting produced an invalid build graph: %w", err)
			}
			r.recordPhase(model.PhaseArchitecting, model.PhaseStatusSucceeded, phaseStart)
			m.emit(model.PhaseArchitecting, model.EventPhaseChange, map[string]interface{}{"status": "succeeded", "build_task_count": len(tasks)})
			cur = model.PhaseBuilding
			m.checkpoint(r, cur)

		case model.PhaseBuilding:
			if err := m.build(ctx, r); err != nil {
				r.recordPhase(model.PhaseBuilding, model.PhaseStatusFailed, phaseStart)
				m.emit(model.PhaseBuilding, model.EventPhaseChange, map[string]interface{}{"status": "failed", "error": err.Error()})
				return model.ExitFailed, fmt.Errorf("orchestrator: building: %w", err)
			}
			r.recordPhase(model.PhaseBuilding, model.PhaseStatusSucceeded, phaseStart)
			m.emit(model.PhaseBuilding, model.EventPhaseChange, map[string]interface{}{"status": "succeeded"})
			cur = model.PhaseValidating
			m.checkpoint(r, cur)

		case model.PhaseValidating:
			report, err := m.validator.Validate(ctx, r.plan)
			if err != nil {
				r.recordPhase(model.PhaseValidating, model.PhaseStatusFailed, phaseStart)
				m.emit(model.PhaseValidating, model.EventPhaseChange, map[string]interface{}{"status": "failed", "error": err.Error()})
				return model.ExitFailed, fmt.Errorf("orchestrator: validating: %w", err)
			}
			m.emit(model.PhaseValidating, model.EventValidationResult, map[string]interface{}{"overall": report.Overall, "passed": report.Passes(nil)})

			if report.Passes(nil) {
				r.recordPhase(model.PhaseValidating, model.PhaseStatusSucceeded, phaseStart)
				cur = model.PhaseCompleted
				m.checkpoint(r, cur)
				continue
			}
			if r.healAtt >= m.cfg.MaxHealAttempts || m.healer == nil {
				r.recordPhase(model.PhaseValidating, model.PhaseStatusFailed, phaseStart)
				return model.ExitFailed, fmt.Errorf("%w: validation did not pass after %d heal attempts", ferrors.ErrValidationFailure, r.healAtt)
			}
			r.recordPhase(model.PhaseValidating, model.PhaseStatusFailed, phaseStart)
			r.failures = report.Failures
			cur = model.PhaseHealing
			m.checkpoint(r, cur)

		case model.PhaseHealing:
			r.healAtt++
			tiered, aborted := m.tierFixTasks(r)
			if len(aborted) > 0 {
				r.recordPhase(model.PhaseHealing, model.PhaseStatusFailed, phaseStart)
				m.emit(model.PhaseHealing, model.EventHealEscalation, map[string]interface{}{
					"attempt": r.healAtt, "aborted": fixTaskKeys(aborted),
				})
				return model.ExitFailed, fmt.Errorf("%w: %d fix target(s) still failing after %d heal attempts, aborting", ferrors.ErrValidationFailure, len(aborted), m.cfg.MaxHealAttempts)
			}
			m.emit(model.PhaseHealing, model.EventHealAttempt, map[string]interface{}{"attempt": r.healAtt, "fix_task_count": len(tiered)})

			revised, err := m.healer.Heal(ctx, tiered)
			if err != nil {
				r.recordPhase(model.PhaseHealing, model.PhaseStatusFailed, phaseStart)
				m.emit(model.PhaseHealing, model.EventPhaseChange, map[string]interface{}{"status": "failed", "error": err.Error()})
				return model.ExitFailed, fmt.Errorf("orchestrator: healing: %w", err)
			}
			mergeBuildTasks(&r.plan, revised, r.succeeded)
			if err := r.plan.Validate(); err != nil {
				r.recordPhase(model.PhaseHealing, model.PhaseStatusFailed, phaseStart)
				return model.ExitFailed, fmt.Errorf("orchestrator: healing produced an invalid build graph: %w", err)
			}
			r.recordPhase(model.PhaseHealing, model.PhaseStatusSucceeded, phaseStart)
			cur = model.PhaseBuilding
			m.checkpoint(r, cur)

		case model.PhaseCompleted:
			m.emit(model.PhaseCompleted, model.EventCompletion, map[string]interface{}{"ok": true})
			return model.ExitCompleted, nil

		case model.PhaseFailed:
			m.emit(model.PhaseFailed, model.EventCompletion, map[string]interface{}{"ok": false})
			return model.ExitFailed, fmt.Errorf("orchestrator: task marked failed")

		default:
			return model.ExitFailed, fmt.Errorf("orchestrator: unknown phase %q", cur)
		}
	}
}

// scout fans out every plan scout topic through a bounded workerpool and
// returns the merged, already-compressed summary (each job compresses its
// own output).
func (m *Orchestrator) scout(ctx context.Context, r *run) (string, error) {
	if len(r.plan.ScoutTopics) == 0 {
		return "", nil
	}

	jobs := make([]workerpool.Job, len(r.plan.ScoutTopics))
	for i, topic := range r.plan.ScoutTopics {
		topic := topic
		jobs[i] = workerpool.Job{
			ID: topic.Title,
			Run: func(ctx context.Context) (model.Artifact, error) {
				m.emit(model.PhaseScouting, model.EventWorkerStarted, map[string]interface{}{"topic": topic.Title})
				summary, tokens, err := m.scouter.Scout(ctx, topic)
				if err != nil {
					m.emit(model.PhaseScouting, model.EventWorkerFailed, map[string]interface{}{"topic": topic.Title, "error": err.Error()})
					return model.Artifact{}, err
				}
				m.emit(model.PhaseScouting, model.EventWorkerCompleted, map[string]interface{}{"topic": topic.Title})
				return model.Artifact{Key: topic.Title, Data: []byte(summary), TokenCount: tokens}, nil
			},
		}
	}

	pool := workerpool.New(workerpool.Config{MaxParallel: m.cfg.MaxParallelScouts})
	results, err := pool.Run(ctx, jobs)
	if err != nil {
		return "", err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].JobID < results[j].JobID })
	var merged string
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		merged += string(res.Artifact.Data) + "\n"
	}
	return merged, nil
}

// build runs every not-yet-succeeded BuildTask in r.plan through a bounded,
// DAG-respecting workerpool, skipping tasks already marked succeeded (from a
// prior run or an unaffected-by-healing task) so resume never re-executes
// completed work.
func (m *Orchestrator) build(ctx context.Context, r *run) error {
	pending := make([]model.BuildTask, 0, len(r.plan.BuildTasks))
	for _, t := range r.plan.BuildTasks {
		if !r.succeeded[t.ID] {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if err := assertOutputsDisjoint(pending); err != nil {
		return err
	}

	pendingIDs := make(map[string]bool, len(pending))
	for _, t := range pending {
		pendingIDs[t.ID] = true
	}

	jobs := make([]workerpool.Job, len(pending))
	for i, t := range pending {
		t := t
		var deps []string
		for _, d := range t.Deps {
			if pendingIDs[d] {
				deps = append(deps, d)
			}
		}
		jobs[i] = workerpool.Job{
			ID:   t.ID,
			Deps: deps,
			Run: func(ctx context.Context) (model.Artifact, error) {
				m.emit(model.PhaseBuilding, model.EventWorkerStarted, map[string]interface{}{"build_task": t.ID})
				artifact, err := m.builder.Build(ctx, t)
				if err != nil {
					m.emit(model.PhaseBuilding, model.EventWorkerFailed, map[string]interface{}{"build_task": t.ID, "error": err.Error()})
					return model.Artifact{}, err
				}
				m.emit(model.PhaseBuilding, model.EventWorkerCompleted, map[string]interface{}{"build_task": t.ID})
				return artifact, nil
			},
		}
	}

	pool := workerpool.New(workerpool.Config{MaxParallel: m.cfg.MaxParallelBuilders, MinSuccessCount: len(jobs)})
	results, err := pool.Run(ctx, jobs)
	for _, res := range results {
		if res.Err == nil {
			r.succeeded[res.JobID] = true
			r.artifacts[res.JobID] = res.Artifact
		}
	}
	return err
}

// tierFixTasks keys each of r.failures by its (ArtifactKey, Dimension) target
// and tiers the response by how many times Healing has already attempted
// that same target: a first occurrence passes through unchanged (retry), a
// repeat occurrence is escalated from a targeted patch to a full regenerate
// (escalate), and a target that has now failed MaxHealAttempts times is
// abandoned instead of handed to the healer again (abort) - so one
// persistently-unfixable artifact can't keep the run looping forever.
func (m *Orchestrator) tierFixTasks(r *run) (tiered []model.FixTask, aborted []model.FixTask) {
	if r.healTier == nil {
		r.healTier = map[string]int{}
	}
	for _, f := range r.failures {
		key := fixTaskKey(f)
		seen := r.healTier[key]
		r.healTier[key] = seen + 1

		switch {
		case seen >= m.cfg.MaxHealAttempts:
			aborted = append(aborted, f)
		case seen >= 1 && f.Kind == model.FixTargetedPatch:
			f.Kind = model.FixRegenerate
			f.InterventionSummary = "escalated after repeated failure: " + f.InterventionSummary
			tiered = append(tiered, f)
		default:
			tiered = append(tiered, f)
		}
	}
	return tiered, aborted
}

func fixTaskKey(f model.FixTask) string {
	return f.ArtifactKey + "::" + string(f.Dimension)
}

func fixTaskKeys(fs []model.FixTask) []string {
	keys := make([]string, len(fs))
	for i, f := range fs {
		keys[i] = fixTaskKey(f)
	}
	return keys
}

// mergeBuildTasks replaces or appends revised tasks into plan and marks each
// revised task's id as not-yet-succeeded, restricting the next Building pass
// to the outputs Healing actually touched.
func mergeBuildTasks(plan *model.Plan, revised []model.BuildTask, succeeded map[string]bool) {
	byID := make(map[string]int, len(plan.BuildTasks))
	for i, t := range plan.BuildTasks {
		byID[t.ID] = i
	}
	for _, t := range revised {
		delete(succeeded, t.ID)
		if i, ok := byID[t.ID]; ok {
			plan.BuildTasks[i] = t
		} else {
			plan.BuildTasks = append(plan.BuildTasks, t)
		}
	}
}

// checkpoint persists run state after a successful phase transition and
// before starting any potentially irreversible external side effect.
// Checkpoint I/O failures degrade to a log event, never a fatal error
// (ferrors.ErrCheckpointIO is always non-fatal).
func (m *Orchestrator) checkpoint(r *run, next model.Phase) {
	if m.checkpoints == nil {
		return
	}
	plan := r.plan
	ledger := r.ledger
	if m.ledger != nil {
		ledger = *m.ledger
	}
	var snapshot []model.ContentItem
	if m.snapshot != nil {
		snapshot = m.snapshot()
	}
	cp := model.Checkpoint{
		TaskID:          r.taskID,
		Plan:            &plan,
		PhaseStates:     r.phaseStates,
		ContextSnapshot: snapshot,
		Ledger:          ledger,
		Cursor: model.Cursor{
			NextPhase:      next,
			SucceededTasks: r.succeeded,
			HealAttempt:    r.healAtt,
			ScoutSummary:   r.scoutSum,
		},
	}
	if err := m.checkpoints.Save(cp); err != nil {
		m.emit(next, model.EventLog, map[string]interface{}{"msg": "checkpoint save failed", "error": err.Error()})
	}
}

func (m *Orchestrator) emit(phaseID model.Phase, kind model.EventKind, payload map[string]interface{}) {
	if m.bus == nil {
		return
	}
	_, _ = m.bus.Emit(phaseID, kind, payload)
}
