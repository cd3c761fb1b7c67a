package patternstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/context-foundry/core/pkg/model"
)

func TestGetPatternMissReturnsFalse(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "patterns.db"))
	require.NoError(t, err)
	defer s.Close()

	p, ok, err := s.GetPattern("refactor", "extract-interface")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, p)
}

func TestSeedThenGetPatternRoundTrips(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "patterns.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Seed(model.Pattern{
		TaskKind:  "refactor",
		PatternID: "extract-interface",
		Summary:   "extract a narrow interface at the call site before mocking",
		Template:  "1. find callers 2. define interface 3. narrow the struct dependency",
	}))

	p, ok, err := s.GetPattern("refactor", "extract-interface")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "refactor", p.TaskKind)
	require.Equal(t, "extract-interface", p.PatternID)
	require.Contains(t, p.Template, "define interface")
}

func TestSeedIsIdempotentAndUpdatesFields(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "patterns.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Seed(model.Pattern{TaskKind: "k", PatternID: "p", Summary: "v1", Template: "t1"}))
	require.NoError(t, s.Seed(model.Pattern{TaskKind: "k", PatternID: "p", Summary: "v2", Template: "t2"}))

	p, ok, err := s.GetPattern("k", "p")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", p.Summary)
}

func TestListByTaskKindScopesByKind(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "patterns.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Seed(model.Pattern{TaskKind: "a", PatternID: "1", Summary: "s1", Template: "t"}))
	require.NoError(t, s.Seed(model.Pattern{TaskKind: "a", PatternID: "2", Summary: "s2", Template: "t"}))
	require.NoError(t, s.Seed(model.Pattern{TaskKind: "b", PatternID: "3", Summary: "s3", Template: "t"}))

	list, err := s.ListByTaskKind("a")
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestRecordUsageRequiresExistingPattern(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "patterns.db"))
	require.NoError(t, err)
	defer s.Close()

	err = s.RecordUsage("missing", "also-missing", time.Now())
	require.Error(t, err)

	require.NoError(t, s.Seed(model.Pattern{TaskKind: "k", PatternID: "p", Summary: "s", Template: "t"}))
	require.NoError(t, s.RecordUsage("k", "p", time.Now()))

	p, ok, err := s.GetPattern("k", "p")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, p.UsageCount)
}
