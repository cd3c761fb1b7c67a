package main

import (
	"strings"
	"testing"

	"github.com/context-foundry/core/pkg/model"
)

func TestZoneColor(t *testing.T) {
	tests := []struct {
		name string
		zone model.Zone
	}{
		{"smart", model.ZoneSmart},
		{"dumb", model.ZoneDumb},
		{"critical", model.ZoneCritical},
		{"over budget", model.ZoneOverBudget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := zoneColor(tt.zone)
			if !strings.Contains(result, string(tt.zone)) {
				t.Errorf("zoneColor(%v) = %q, want it to contain %q", tt.zone, result, tt.zone)
			}
		})
	}
}
