package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/context-foundry/core/pkg/model"
)

func TestStripFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\": 1}\n```\n  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := string(stripFence([]byte(tt.input)))
			if result != tt.expected {
				t.Errorf("stripFence(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestMergeReports(t *testing.T) {
	a := model.ValidationReport{
		Scores: map[model.RubricDimension]float64{
			model.DimensionCorrectness: 0.9,
			model.DimensionCoverage:    0.8,
			model.DimensionStyle:       0.7,
			model.DimensionIntegration: 0.6,
			model.DimensionSafety:      1.0,
		},
		Failures: []model.FixTask{{ArtifactKey: "a.go", Dimension: model.DimensionStyle}},
	}
	b := model.ValidationReport{
		Scores: map[model.RubricDimension]float64{
			model.DimensionCorrectness: 0.7,
			model.DimensionCoverage:    0.6,
			model.DimensionStyle:       0.5,
			model.DimensionIntegration: 0.4,
			model.DimensionSafety:      0.8,
		},
		Failures: []model.FixTask{{ArtifactKey: "b.go", Dimension: model.DimensionCoverage}},
	}

	merged := mergeReports([]model.ValidationReport{a, b})

	if got, want := merged.Scores[model.DimensionCorrectness], 0.8; got != want {
		t.Errorf("merged correctness = %v, want %v", got, want)
	}
	if got, want := merged.Scores[model.DimensionSafety], 0.9; got != want {
		t.Errorf("merged safety = %v, want %v", got, want)
	}
	if len(merged.Failures) != 2 {
		t.Errorf("merged failures = %d, want 2", len(merged.Failures))
	}

	var sum float64
	for _, dim := range model.AllDimensions {
		sum += merged.Scores[dim]
	}
	wantOverall := sum / float64(len(model.AllDimensions))
	if merged.Overall != wantOverall {
		t.Errorf("merged overall = %v, want %v", merged.Overall, wantOverall)
	}
}

func TestMergeReportsSingleReport(t *testing.T) {
	only := model.ValidationReport{
		Scores: map[model.RubricDimension]float64{
			model.DimensionCorrectness: 1,
			model.DimensionCoverage:    1,
			model.DimensionStyle:       1,
			model.DimensionIntegration: 1,
			model.DimensionSafety:      1,
		},
	}
	merged := mergeReports([]model.ValidationReport{only})
	if merged.Overall != 1 {
		t.Errorf("merged.Overall = %v, want 1", merged.Overall)
	}
}

func TestWriteAndReadOutputs(t *testing.T) {
	root := t.TempDir()
	outputs := []string{"a/one.go", "b/two.go"}
	content := []byte("package foo\n")

	if err := writeOutputs(root, outputs, content); err != nil {
		t.Fatalf("writeOutputs returned error: %v", err)
	}

	for _, rel := range outputs {
		data, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			t.Fatalf("reading %s: %v", rel, err)
		}
		if string(data) != string(content) {
			t.Errorf("%s content = %q, want %q", rel, data, content)
		}
	}

	combined, err := readOutputs(root, outputs)
	if err != nil {
		t.Fatalf("readOutputs returned error: %v", err)
	}
	for _, rel := range outputs {
		if !strings.Contains(combined, rel) {
			t.Errorf("readOutputs result missing marker for %s:\n%s", rel, combined)
		}
	}
}

func TestReadOutputsMissingFile(t *testing.T) {
	root := t.TempDir()
	if _, err := readOutputs(root, []string{"missing.go"}); err == nil {
		t.Error("readOutputs on a missing file returned nil error, want an error")
	}
}
