package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/context-foundry/core/pkg/model"
)

func TestEmitSeqMonotone(t *testing.T) {
	b, err := New(t.TempDir(), "task-1")
	require.NoError(t, err)
	defer b.Close()

	e1, err := b.Emit(model.PhasePlanning, model.EventPhaseChange, nil)
	require.NoError(t, err)
	e2, err := b.Emit(model.PhasePlanning, model.EventLog, nil)
	require.NoError(t, err)

	require.Equal(t, int64(0), e1.Seq)
	require.Equal(t, int64(1), e2.Seq)
}

func TestSubscribeReplaysThenFollows(t *testing.T) {
	root := t.TempDir()
	b, err := New(root, "task-1")
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Emit(model.PhasePlanning, model.EventPhaseChange, nil)
	require.NoError(t, err)

	sub, err := b.Subscribe(0)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := <-sub.Events
	require.Equal(t, int64(0), first.Seq)

	_, err = b.Emit(model.PhaseScouting, model.EventWorkerStarted, nil)
	require.NoError(t, err)

	select {
	case second := <-sub.Events:
		require.Equal(t, int64(1), second.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestReopenContinuesSequence(t *testing.T) {
	root := t.TempDir()
	b1, err := New(root, "task-1")
	require.NoError(t, err)
	_, err = b1.Emit(model.PhasePlanning, model.EventPhaseChange, nil)
	require.NoError(t, err)
	require.NoError(t, b1.Close())

	b2, err := New(root, "task-1")
	require.NoError(t, err)
	defer b2.Close()

	e, err := b2.Emit(model.PhaseScouting, model.EventLog, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), e.Seq)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	root := t.TempDir()
	b, err := New(root, "task-1")
	require.NoError(t, err)
	defer b.Close()

	sub, err := b.Subscribe(0)
	require.NoError(t, err)
	sub.Unsubscribe()

	_, open := <-sub.Events
	require.False(t, open)
}

func TestMultipleSubscribersEachObserveInOrder(t *testing.T) {
	root := t.TempDir()
	b, err := New(root, "task-1")
	require.NoError(t, err)
	defer b.Close()

	subA, err := b.Subscribe(0)
	require.NoError(t, err)
	defer subA.Unsubscribe()
	subB, err := b.Subscribe(0)
	require.NoError(t, err)
	defer subB.Unsubscribe()

	for i := 0; i < 5; i++ {
		_, err := b.Emit(model.PhaseBuilding, model.EventLog, nil)
		require.NoError(t, err)
	}

	var lastA, lastB int64 = -1, -1
	for i := 0; i < 5; i++ {
		e := <-subA.Events
		require.Greater(t, e.Seq, lastA)
		lastA = e.Seq
	}
	for i := 0; i < 5; i++ {
		e := <-subB.Events
		require.Greater(t, e.Seq, lastB)
		lastB = e.Seq
	}
}
