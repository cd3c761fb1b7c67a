package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/context-foundry/core/internal/checkpoint"
	"github.com/context-foundry/core/internal/eventbus"
	"github.com/context-foundry/core/pkg/model"
)

type stubPlanner struct {
	plan model.Plan
	err  error
}

func (s stubPlanner) Plan(ctx context.Context, task model.Task) (model.Plan, error) {
	return s.plan, s.err
}

type stubScouter struct{}

func (stubScouter) Scout(ctx context.Context, topic model.ScoutTopic) (string, int64, error) {
	return "summary of " + topic.Title, 10, nil
}

type stubArchitect struct {
	tasks []model.BuildTask
	err   error
}

func (s stubArchitect) Architect(ctx context.Context, plan model.Plan, scoutSummary string) ([]model.BuildTask, error) {
	return s.tasks, s.err
}

type recordingBuilder struct {
	built []string
	err   error
}

func (b *recordingBuilder) Build(ctx context.Context, task model.BuildTask) (model.Artifact, error) {
	b.built = append(b.built, task.ID)
	if b.err != nil {
		return model.Artifact{}, b.err
	}
	return model.Artifact{Key: task.ID}, nil
}

type stubValidator struct {
	reports []model.ValidationReport
	calls   int
}

func (s *stubValidator) Validate(ctx context.Context, plan model.Plan) (model.ValidationReport, error) {
	i := s.calls
	if i >= len(s.reports) {
		i = len(s.reports) - 1
	}
	s.calls++
	return s.reports[i], nil
}

func passingReport() model.ValidationReport {
	scores := map[model.RubricDimension]float64{}
	for _, d := range model.AllDimensions {
		scores[d] = 1.0
	}
	return model.ValidationReport{Scores: scores, Overall: 1.0}
}

func failingReport() model.ValidationReport {
	scores := map[model.RubricDimension]float64{}
	for _, d := range model.AllDimensions {
		scores[d] = 0.1
	}
	return model.ValidationReport{
		Scores:  scores,
		Overall: 0.1,
		Failures: []model.FixTask{
			{Kind: model.FixRegenerate, ArtifactKey: "a", Dimension: model.DimensionCorrectness},
		},
	}
}

type stubHealer struct {
	revised []model.BuildTask
	err     error
}

func (h stubHealer) Heal(ctx context.Context, failures []model.FixTask) ([]model.BuildTask, error) {
	return h.revised, h.err
}

func simplePlan() model.Plan {
	return model.Plan{
		BuildTasks: []model.BuildTask{
			{ID: "a", Outputs: []string{"a.txt"}},
			{ID: "b", Deps: []string{"a"}, Outputs: []string{"b.txt"}},
		},
	}
}

func TestOrchestratorRunCompletesOnFirstPass(t *testing.T) {
	dir := t.TempDir()
	bus, err := eventbus.New(dir, "t1")
	require.NoError(t, err)
	cps := checkpoint.New(dir)

	builder := &recordingBuilder{}
	validator := &stubValidator{reports: []model.ValidationReport{passingReport()}}

	m := New(stubPlanner{plan: simplePlan()}, stubScouter{}, stubArchitect{tasks: simplePlan().BuildTasks},
		builder, validator, nil, cps, bus, DefaultConfig())

	exit, err := m.Run(context.Background(), "t1", model.Task{ID: "t1"})
	require.NoError(t, err)
	require.Equal(t, model.ExitCompleted, exit)
	require.ElementsMatch(t, []string{"a", "b"}, builder.built)
}

func TestOrchestratorRunFailsWhenPlanningErrors(t *testing.T) {
	dir := t.TempDir()
	bus, err := eventbus.New(dir, "t2")
	require.NoError(t, err)
	cps := checkpoint.New(dir)

	m := New(stubPlanner{err: fmt.Errorf("planning broke")}, stubScouter{}, stubArchitect{}, &recordingBuilder{},
		&stubValidator{reports: []model.ValidationReport{passingReport()}}, nil, cps, bus, DefaultConfig())

	exit, err := m.Run(context.Background(), "t2", model.Task{ID: "t2"})
	require.Error(t, err)
	require.Equal(t, model.ExitFailed, exit)
}

func TestOrchestratorRunHealsThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	bus, err := eventbus.New(dir, "t3")
	require.NoError(t, err)
	cps := checkpoint.New(dir)

	builder := &recordingBuilder{}
	validator := &stubValidator{reports: []model.ValidationReport{failingReport(), passingReport()}}
	healer := stubHealer{revised: []model.BuildTask{{ID: "a", Outputs: []string{"a.txt"}}}}

	m := New(stubPlanner{plan: simplePlan()}, stubScouter{}, stubArchitect{tasks: simplePlan().BuildTasks},
		builder, validator, healer, cps, bus, DefaultConfig())

	exit, err := m.Run(context.Background(), "t3", model.Task{ID: "t3"})
	require.NoError(t, err)
	require.Equal(t, model.ExitCompleted, exit)
	require.Equal(t, 2, validator.calls)
	// "a" rebuilt once during Building, once more during the post-heal Building pass.
	count := 0
	for _, id := range builder.built {
		if id == "a" {
			count++
		}
	}
	require.Equal(t, 2, count)
}

func TestOrchestratorRunFailsAfterExhaustingHealAttempts(t *testing.T) {
	dir := t.TempDir()
	bus, err := eventbus.New(dir, "t4")
	require.NoError(t, err)
	cps := checkpoint.New(dir)

	builder := &recordingBuilder{}
	validator := &stubValidator{reports: []model.ValidationReport{failingReport()}}
	healer := stubHealer{revised: []model.BuildTask{{ID: "a", Outputs: []string{"a.txt"}}}}

	cfg := DefaultConfig()
	cfg.MaxHealAttempts = 1

	m := New(stubPlanner{plan: simplePlan()}, stubScouter{}, stubArchitect{tasks: simplePlan().BuildTasks},
		builder, validator, healer, cps, bus, cfg)

	exit, err := m.Run(context.Background(), "t4", model.Task{ID: "t4"})
	require.Error(t, err)
	require.Equal(t, model.ExitFailed, exit)
}

func TestOrchestratorRunResumesWithoutRebuildingSucceededTasks(t *testing.T) {
	dir := t.TempDir()
	bus, err := eventbus.New(dir, "t5")
	require.NoError(t, err)
	cps := checkpoint.New(dir)

	plan := simplePlan()
	require.NoError(t, cps.Save(model.Checkpoint{
		TaskID: "t5",
		Plan:   &plan,
		Cursor: model.Cursor{NextPhase: model.PhaseBuilding, SucceededTasks: map[string]bool{"a": true}},
	}))

	builder := &recordingBuilder{}
	validator := &stubValidator{reports: []model.ValidationReport{passingReport()}}

	m := New(stubPlanner{}, stubScouter{}, stubArchitect{}, builder, validator, nil, cps, bus, DefaultConfig())

	exit, err := m.Run(context.Background(), "t5", model.Task{ID: "t5"})
	require.NoError(t, err)
	require.Equal(t, model.ExitCompleted, exit)
	require.Equal(t, []string{"b"}, builder.built, "task a was already succeeded and must not rebuild")
}
