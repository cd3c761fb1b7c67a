package main

import (
	"path/filepath"
	"testing"

	"github.com/context-foundry/core/pkg/model"
)

func TestBudgetPhaseFor(t *testing.T) {
	tests := []struct {
		name     string
		phase    model.Phase
		expected model.BudgetPhase
	}{
		{"scouting", model.PhaseScouting, model.BudgetScout},
		{"architecting", model.PhaseArchitecting, model.BudgetArchitect},
		{"building", model.PhaseBuilding, model.BudgetBuilder},
		{"validating", model.PhaseValidating, model.BudgetValidator},
		{"healing", model.PhaseHealing, model.BudgetHeal},
		{"planning falls back to system", model.PhasePlanning, model.BudgetSystem},
		{"unknown falls back to system", model.Phase("nonsense"), model.BudgetSystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := budgetPhaseFor(tt.phase)
			if result != tt.expected {
				t.Errorf("budgetPhaseFor(%v) = %v, want %v", tt.phase, result, tt.expected)
			}
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name     string
		exit     model.ExitCondition
		expected int
	}{
		{"completed", model.ExitCompleted, 0},
		{"cancelled", model.ExitCancelled, 2},
		{"deadline exceeded", model.ExitDeadlineExceeded, 3},
		{"failed falls back to 1", model.ExitFailed, 1},
		{"unknown falls back to 1", model.ExitCondition("nonsense"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := exitCodeFor(tt.exit)
			if result != tt.expected {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.exit, result, tt.expected)
			}
		})
	}
}

func TestCancelMarkerPath(t *testing.T) {
	result := cancelMarkerPath("/work/root", "task-123")
	expected := filepath.Join("/work/root", ".state", "cancel", "task-123")
	if result != expected {
		t.Errorf("cancelMarkerPath() = %q, want %q", result, expected)
	}
}

func TestResolveTargetDir(t *testing.T) {
	t.Run("explicit dir resolves to absolute", func(t *testing.T) {
		result, err := resolveTargetDir("some/relative/dir")
		if err != nil {
			t.Fatalf("resolveTargetDir returned error: %v", err)
		}
		if !filepath.IsAbs(result) {
			t.Errorf("resolveTargetDir(%q) = %q, want an absolute path", "some/relative/dir", result)
		}
	})

	t.Run("empty dir falls back to cwd", func(t *testing.T) {
		result, err := resolveTargetDir("")
		if err != nil {
			t.Fatalf("resolveTargetDir returned error: %v", err)
		}
		if !filepath.IsAbs(result) {
			t.Errorf("resolveTargetDir(\"\") = %q, want an absolute path", result)
		}
	})
}

func TestNewTaskID(t *testing.T) {
	a := newTaskID()
	b := newTaskID()
	if a == "" {
		t.Error("newTaskID() returned empty string")
	}
	if a == b {
		t.Errorf("newTaskID() returned the same id twice: %q", a)
	}
}
