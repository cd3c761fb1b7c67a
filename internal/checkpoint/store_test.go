package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/context-foundry/core/pkg/model"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := New(t.TempDir())

	cp := model.Checkpoint{
		TaskID: "task-1",
		Plan:   &model.Plan{BuildTasks: []model.BuildTask{{ID: "bt1"}}},
		Cursor: model.Cursor{NextPhase: model.PhaseBuilding, SucceededTasks: map[string]bool{"bt0": true}},
	}
	require.NoError(t, s.Save(cp))

	loaded, err := s.Load("task-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, cp.TaskID, loaded.TaskID)
	require.Equal(t, cp.Cursor.NextPhase, loaded.Cursor.NextPhase)
	require.True(t, loaded.Cursor.SucceededTasks["bt0"])
}

func TestLoadMissingReturnsNilNil(t *testing.T) {
	s := New(t.TempDir())
	loaded, err := s.Load("does-not-exist")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestListReturnsSortedTaskIDs(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Save(model.Checkpoint{TaskID: "b"}))
	require.NoError(t, s.Save(model.Checkpoint{TaskID: "a"}))

	ids, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}

func TestSaveOverwritesPriorCheckpoint(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Save(model.Checkpoint{TaskID: "t", Cursor: model.Cursor{NextPhase: model.PhasePlanning}}))
	require.NoError(t, s.Save(model.Checkpoint{TaskID: "t", Cursor: model.Cursor{NextPhase: model.PhaseValidating}}))

	loaded, err := s.Load("t")
	require.NoError(t, err)
	require.Equal(t, model.PhaseValidating, loaded.Cursor.NextPhase)
}
