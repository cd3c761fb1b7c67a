package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/context-foundry/core/pkg/model"
)

func TestRunExecutesIndependentJobsConcurrently(t *testing.T) {
	var inFlight, maxInFlight int32

	job := func(id string) Job {
		return Job{ID: id, Run: func(ctx context.Context) (model.Artifact, error) {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				max := atomic.LoadInt32(&maxInFlight)
				if cur <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return model.Artifact{Key: id}, nil
		}}
	}

	p := New(Config{MaxParallel: 3})
	results, err := p.Run(context.Background(), []Job{job("a"), job("b"), job("c")})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.GreaterOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
}

func TestRunRespectsMaxParallel(t *testing.T) {
	var inFlight, maxInFlight int32
	var mu sync.Mutex

	job := func(id string) Job {
		return Job{ID: id, Run: func(ctx context.Context) (model.Artifact, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return model.Artifact{}, nil
		}}
	}

	jobs := make([]Job, 10)
	for i := range jobs {
		jobs[i] = job(fmt.Sprintf("j%d", i))
	}

	p := New(Config{MaxParallel: 2})
	_, err := p.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.LessOrEqual(t, maxInFlight, int32(2))
}

func TestRunRespectsDependencyOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex

	record := func(id string) Job {
		return Job{ID: id, Run: func(ctx context.Context) (model.Artifact, error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return model.Artifact{}, nil
		}}
	}

	b := record("b")
	b.Deps = []string{"a"}
	c := record("c")
	c.Deps = []string{"b"}

	p := New(Config{MaxParallel: 4})
	_, err := p.Run(context.Background(), []Job{c, b, record("a")})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRunSkipsDependentsOfFailedJob(t *testing.T) {
	failing := Job{ID: "fail", Run: func(ctx context.Context) (model.Artifact, error) {
		return model.Artifact{}, fmt.Errorf("boom")
	}}
	dependent := Job{ID: "dep", Deps: []string{"fail"}, Run: func(ctx context.Context) (model.Artifact, error) {
		t.Fatal("dependent job must not run when its dependency failed")
		return model.Artifact{}, nil
	}}

	p := New(Config{MaxParallel: 2, MinSuccessCount: 1})
	results, err := p.Run(context.Background(), []Job{failing, dependent})
	require.Error(t, err)

	byID := map[string]Result{}
	for _, r := range results {
		byID[r.JobID] = r
	}
	require.Error(t, byID["fail"].Err)
	require.Error(t, byID["dep"].Err)
}

func TestRunReturnsErrorBelowMinSuccessCount(t *testing.T) {
	ok := Job{ID: "ok", Run: func(ctx context.Context) (model.Artifact, error) { return model.Artifact{}, nil }}
	fail := Job{ID: "fail", Run: func(ctx context.Context) (model.Artifact, error) { return model.Artifact{}, fmt.Errorf("boom") }}

	p := New(Config{MaxParallel: 2, MinSuccessCount: 2})
	_, err := p.Run(context.Background(), []Job{ok, fail})
	require.Error(t, err)
}

func TestRunRejectsUnknownDependency(t *testing.T) {
	j := Job{ID: "a", Deps: []string{"missing"}, Run: func(ctx context.Context) (model.Artifact, error) { return model.Artifact{}, nil }}
	p := New(Config{MaxParallel: 1})
	_, err := p.Run(context.Background(), []Job{j})
	require.Error(t, err)
}

func TestRunRejectsDuplicateJobID(t *testing.T) {
	noop := func(ctx context.Context) (model.Artifact, error) { return model.Artifact{}, nil }
	p := New(Config{MaxParallel: 1})
	_, err := p.Run(context.Background(), []Job{{ID: "x", Run: noop}, {ID: "x", Run: noop}})
	require.Error(t, err)
}
