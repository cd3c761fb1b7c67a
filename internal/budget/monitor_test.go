package budget

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/context-foundry/core/pkg/model"
)

func TestAllocatePercentagesOfWindow(t *testing.T) {
	m := New(Profile{Name: "default"}, 100_000)
	require.Equal(t, int64(15_000), m.Allocation(model.BudgetSystem))
	require.Equal(t, int64(20_000), m.Allocation(model.BudgetBuilder))
}

func TestCheckZeroLengthIsSmart(t *testing.T) {
	m := New(Profile{Name: "default"}, 100_000)
	res := m.Check(model.BudgetScout, 0)
	require.Equal(t, model.ZoneSmart, res.Zone)
}

func TestCheckBoundaries(t *testing.T) {
	m := New(Profile{Pct: map[model.BudgetPhase]float64{model.BudgetBuilder: 10}}, 10_000)
	// allocation = 1000 tokens
	require.Equal(t, model.ZoneSmart, m.Check(model.BudgetBuilder, 399).Zone)
	require.Equal(t, model.ZoneDumb, m.Check(model.BudgetBuilder, 400).Zone)
	require.Equal(t, model.ZoneDumb, m.Check(model.BudgetBuilder, 799).Zone)
	require.Equal(t, model.ZoneCritical, m.Check(model.BudgetBuilder, 800).Zone)
	require.Equal(t, model.ZoneCritical, m.Check(model.BudgetBuilder, 1000).Zone)
	require.Equal(t, model.ZoneOverBudget, m.Check(model.BudgetBuilder, 1001).Zone)
}

func TestAllocationsDoNotHaveToSumTo100(t *testing.T) {
	var total float64
	for _, pct := range DefaultAllocationPct {
		total += pct
	}
	require.Less(t, total, 100.0)
}
