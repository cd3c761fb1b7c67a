package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/context-foundry/core/internal/phase"
	"github.com/context-foundry/core/internal/provider"
	"github.com/context-foundry/core/internal/validator"
	"github.com/context-foundry/core/pkg/model"
)

// runJSON drives runner through one phase.Runner.Run call and decodes its
// artifact as JSON into out, tolerating a markdown code fence around the
// payload (a common LLM habit the orchestrator core's prompts discourage but
// do not forbid).
func runJSON(ctx context.Context, runner *phase.Runner, ph model.Phase, budgetPhase model.BudgetPhase, modelName, prompt string, out interface{}) error {
	artifact, _, err := runner.Run(ctx, phase.Input{
		Phase:            ph,
		BudgetPhase:      budgetPhase,
		NormalizedInputs: prompt,
		ModelFingerprint: modelName,
		ArtifactTTL:      24 * time.Hour,
		Assemble: func() provider.Request {
			return provider.Request{
				Model:    modelName,
				Messages: []provider.Message{{Role: "user", Content: prompt}},
			}
		},
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(stripFence(artifact.Data), out); err != nil {
		return fmt.Errorf("foundry: parse %s response: %w", ph, err)
	}
	return nil
}

// stripFence removes a surrounding ```json ... ``` or ``` ... ``` fence, if
// present, so JSON decoding doesn't choke on the wrapper.
func stripFence(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("```")) {
		return trimmed
	}
	trimmed = bytes.TrimPrefix(trimmed, []byte("```json"))
	trimmed = bytes.TrimPrefix(trimmed, []byte("```"))
	trimmed = bytes.TrimSuffix(trimmed, []byte("```"))
	return bytes.TrimSpace(trimmed)
}

// llmPlanner implements orchestrator.Planner atop a phase.Runner.
type llmPlanner struct {
	runner *phase.Runner
	model  string
}

func (p *llmPlanner) Plan(ctx context.Context, task model.Task) (model.Plan, error) {
	prompt := fmt.Sprintf(
		"You are planning a software build. Respond with a single JSON object "+
			"matching {\"scout_topics\":[{\"title\":string,\"prompt\":string,\"estimated_tokens\":int}],"+
			"\"build_tasks\":[],\"estimated_tokens\":{}}. Leave build_tasks empty; it is filled in "+
			"after research. Task description: %s\nTarget directory: %s",
		task.Description, task.TargetDirectory,
	)
	var plan model.Plan
	if err := runJSON(ctx, p.runner, model.PhasePlanning, model.BudgetSystem, p.model, prompt, &plan); err != nil {
		return model.Plan{}, err
	}
	return plan, nil
}

// llmScouter implements orchestrator.Scouter atop a phase.Runner, consulting
// the pattern library for prior art before researching from scratch.
type llmScouter struct {
	runner   *phase.Runner
	model    string
	patterns patternLookup
}

// patternLookup narrows internal/patternstore.Store to the read path
// llmScouter needs, so it can be stubbed in tests without opening a real
// database.
type patternLookup interface {
	ListByTaskKind(taskKind string) ([]*model.Pattern, error)
}

func (s *llmScouter) Scout(ctx context.Context, topic model.ScoutTopic) (string, int64, error) {
	var priorArt strings.Builder
	if s.patterns != nil {
		if hits, err := s.patterns.ListByTaskKind(topic.Title); err == nil {
			for _, h := range hits {
				fmt.Fprintf(&priorArt, "- %s: %s\n", h.PatternID, h.Summary)
			}
		}
	}

	prompt := fmt.Sprintf(
		"Research the following topic for an upcoming build. Respond with a "+
			"single JSON object {\"summary\": string} where summary is compressed "+
			"to no more than 25%% of a full research transcript's length.\n"+
			"Topic: %s\nGuidance: %s\nKnown prior art:\n%s",
		topic.Title, topic.Prompt, priorArt.String(),
	)

	var out struct {
		Summary string `json:"summary"`
	}
	if err := runJSON(ctx, s.runner, model.PhaseScouting, model.BudgetScout, s.model, prompt, &out); err != nil {
		return "", 0, err
	}
	return out.Summary, int64(len(out.Summary)) / 4, nil
}

// llmArchitect implements orchestrator.Architect atop a phase.Runner.
type llmArchitect struct {
	runner *phase.Runner
	model  string
}

func (a *llmArchitect) Architect(ctx context.Context, plan model.Plan, scoutSummary string) ([]model.BuildTask, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("foundry: marshal plan for architecting: %w", err)
	}
	prompt := fmt.Sprintf(
		"Turn the research below into an ordered build-task graph. Respond with "+
			"a single JSON object {\"build_tasks\":[{\"id\":string,\"title\":string,"+
			"\"inputs\":[string],\"outputs\":[string],\"deps\":[string],\"max_tokens\":int}]}. "+
			"Every build task's outputs must be disjoint from every other task's outputs.\n"+
			"Plan: %s\nResearch summary: %s",
		string(planJSON), scoutSummary,
	)
	var out struct {
		BuildTasks []model.BuildTask `json:"build_tasks"`
	}
	if err := runJSON(ctx, a.runner, model.PhaseArchitecting, model.BudgetArchitect, a.model, prompt, &out); err != nil {
		return nil, err
	}
	return out.BuildTasks, nil
}

// llmBuilder implements orchestrator.Builder atop a phase.Runner, writing
// the produced content to every output path the BuildTask declares.
type llmBuilder struct {
	runner  *phase.Runner
	model   string
	rootDir string
}

func (b *llmBuilder) Build(ctx context.Context, task model.BuildTask) (model.Artifact, error) {
	prompt := fmt.Sprintf(
		"Implement the following build task. Respond with only the complete "+
			"file contents; if multiple outputs are listed, separate each file "+
			"with a line containing exactly \"--- %%s ---\" naming its output path.\n"+
			"Task: %s\nInputs: %v\nOutputs: %v\nToken budget: %d",
		task.Title, task.Inputs, task.Outputs, task.MaxTokens,
	)

	artifact, _, err := b.runner.Run(ctx, phase.Input{
		Phase:            model.PhaseBuilding,
		BudgetPhase:      model.BudgetBuilder,
		NormalizedInputs: task.ID + "|" + prompt,
		ModelFingerprint: b.model,
		ArtifactTTL:      24 * time.Hour,
		Assemble: func() provider.Request {
			return provider.Request{
				Model:           b.model,
				Messages:        []provider.Message{{Role: "user", Content: prompt}},
				MaxOutputTokens: task.MaxTokens,
			}
		},
	})
	if err != nil {
		return model.Artifact{}, err
	}

	if err := writeOutputs(b.rootDir, task.Outputs, artifact.Data); err != nil {
		return model.Artifact{}, err
	}
	return artifact, nil
}

// writeOutputs persists content to every declared output path. A single
// output gets the full content; multiple outputs each receive a copy, since
// splitting the model's response into per-file sections reliably requires a
// stricter wire format than free-text generation guarantees.
func writeOutputs(rootDir string, outputs []string, content []byte) error {
	for _, rel := range outputs {
		path := filepath.Join(rootDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("foundry: create output directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("foundry: write output %s: %w", rel, err)
		}
	}
	return nil
}

// readOutputs concatenates the current contents of every output path, for
// Validating to score against.
func readOutputs(rootDir string, outputs []string) (string, error) {
	var sb strings.Builder
	for _, rel := range outputs {
		data, err := os.ReadFile(filepath.Join(rootDir, rel))
		if err != nil {
			return "", fmt.Errorf("foundry: read output %s: %w", rel, err)
		}
		sb.WriteString(fmt.Sprintf("--- %s ---\n", rel))
		sb.Write(data)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// llmHealer implements orchestrator.Healer atop a phase.Runner.
type llmHealer struct {
	runner *phase.Runner
	model  string
}

func (h *llmHealer) Heal(ctx context.Context, failures []model.FixTask) ([]model.BuildTask, error) {
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return nil, fmt.Errorf("foundry: marshal failures for healing: %w", err)
	}
	prompt := fmt.Sprintf(
		"Validation found the following failures. Respond with a single JSON "+
			"object {\"build_tasks\":[{\"id\":string,\"title\":string,\"inputs\":[string],"+
			"\"outputs\":[string],\"deps\":[string],\"max_tokens\":int}]} describing a "+
			"revised build task for each affected output, reusing its original id.\n"+
			"Failures: %s",
		string(failuresJSON),
	)
	var out struct {
		BuildTasks []model.BuildTask `json:"build_tasks"`
	}
	if err := runJSON(ctx, h.runner, model.PhaseHealing, model.BudgetHeal, h.model, prompt, &out); err != nil {
		return nil, err
	}
	return out.BuildTasks, nil
}

// llmScorer implements internal/validator.Scorer atop a raw provider.Client
// call (judging is a single request/response round trip, not a cached
// phase.Runner pass, since the Attempts loop in internal/validator.Validator
// already needs an independently-sampled response per call).
type llmScorer struct {
	client *provider.Client
	model  string
}

func (s *llmScorer) Score(ctx context.Context, artifactKey, content string) (map[model.RubricDimension]float64, []model.FixTask, error) {
	prompt := fmt.Sprintf(
		"Score the following artifact against five dimensions (correctness, "+
			"coverage, style, integration, safety), each from 0 to 1. Respond with "+
			"a single JSON object {\"scores\":{\"correctness\":float,\"coverage\":float,"+
			"\"style\":float,\"integration\":float,\"safety\":float},\"failures\":"+
			"[{\"kind\":\"targeted_patch\"|\"regenerate\"|\"clarify_requirement\","+
			"\"artifact_key\":string,\"dimension\":string,\"intervention_summary\":string}]}. "+
			"Only include a failure for a dimension scoring below 0.7.\n"+
			"Artifact key: %s\nContent:\n%s",
		artifactKey, content,
	)
	resp, err := s.client.Complete(ctx, model.BudgetValidator, provider.Request{
		Model:    s.model,
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, nil, err
	}

	var out struct {
		Scores   map[model.RubricDimension]float64 `json:"scores"`
		Failures []model.FixTask                   `json:"failures"`
	}
	if err := json.Unmarshal(stripFence([]byte(resp.Text)), &out); err != nil {
		return nil, nil, fmt.Errorf("foundry: parse scorer response: %w", err)
	}
	for i := range out.Failures {
		if out.Failures[i].ArtifactKey == "" {
			out.Failures[i].ArtifactKey = artifactKey
		}
	}
	return out.Scores, out.Failures, nil
}

// llmSummarizer implements internal/context.Summarizer atop a raw
// provider.Client call. It is invoked from within phase.Runner's own compact
// step, so it must not recurse back through phase.Runner.
type llmSummarizer struct {
	client *provider.Client
	model  string
}

func (s *llmSummarizer) Summarize(ctx context.Context, items []model.ContentItem) (string, error) {
	var sb strings.Builder
	for _, item := range items {
		fmt.Fprintf(&sb, "[%s] %s\n", item.Kind, item.Text)
	}
	prompt := "Summarize the following conversation history, preserving every " +
		"decision, error, and pattern reference. Respond with plain text, no " +
		"JSON wrapper, at most a quarter of the original length.\n\n" + sb.String()

	resp, err := s.client.Complete(ctx, model.BudgetSystem, provider.Request{
		Model:    s.model,
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// planValidator implements orchestrator.Validator by aggregating
// internal/validator.Validator's per-artifact scoring across every BuildTask
// in the plan, since Orchestrator drives validation at the plan level while
// Validator itself scores one artifact at a time.
type planValidator struct {
	v       *validator.Validator
	rootDir string
}

func (pv *planValidator) Validate(ctx context.Context, plan model.Plan) (model.ValidationReport, error) {
	if len(plan.BuildTasks) == 0 {
		return model.ValidationReport{}, nil
	}

	reports := make([]model.ValidationReport, 0, len(plan.BuildTasks))
	for _, task := range plan.BuildTasks {
		content, err := readOutputs(pv.rootDir, task.Outputs)
		if err != nil {
			return model.ValidationReport{}, err
		}
		report, err := pv.v.Validate(ctx, task.ID, content)
		if err != nil {
			return model.ValidationReport{}, fmt.Errorf("foundry: validate build task %s: %w", task.ID, err)
		}
		reports = append(reports, report)
	}
	return mergeReports(reports), nil
}

// mergeReports averages per-dimension scores across reports and unions their
// failures, so one slow or failing build task can't mask another's score.
func mergeReports(reports []model.ValidationReport) model.ValidationReport {
	merged := model.ValidationReport{Scores: make(map[model.RubricDimension]float64, len(model.AllDimensions))}
	for _, dim := range model.AllDimensions {
		var sum float64
		for _, r := range reports {
			sum += r.Scores[dim]
		}
		merged.Scores[dim] = sum / float64(len(reports))
		merged.Overall += merged.Scores[dim]
	}
	merged.Overall /= float64(len(model.AllDimensions))
	for _, r := range reports {
		merged.Failures = append(merged.Failures, r.Failures...)
	}
	return merged
}
