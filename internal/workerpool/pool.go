// Package workerpool implements the WorkerPool: a bounded,
// DAG-respecting concurrent executor for Scouting and Building phase jobs,
// generalized from internal/orchestrator/pool.go's goroutine-per-job
// fan-out/fan-in but replacing its hand-rolled sync.WaitGroup with
// golang.org/x/sync's errgroup + semaphore for the parallelism cap.
package workerpool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/context-foundry/core/pkg/model"
)

// Job is one unit of work submitted to a Pool. ID must be unique within a
// single Run call; Deps names other Jobs in the same batch that must
// complete (successfully) before this one starts, mirroring BuildTask.Deps.
type Job struct {
	ID   string
	Deps []string
	Run  func(ctx context.Context) (model.Artifact, error)
}

// Result is one Job's outcome.
type Result struct {
	JobID    string
	Artifact model.Artifact
	Err      error
}

// Config bounds a Pool's concurrency and partial-failure tolerance.
type Config struct {
	// MaxParallel caps concurrently running jobs (max_parallel_scouts /
	// max_parallel_builders).
	MaxParallel int
	// MinSuccessCount is the minimum number of jobs that must succeed for
	// Run to return a nil error; below it, Run returns the first job error
	// wrapped. Zero means "all jobs must succeed."
	MinSuccessCount int
}

// Pool runs a DAG of Jobs with bounded parallelism, releasing a job to run
// only once every dependency in the same batch has succeeded. Jobs whose
// dependency failed are skipped, not run.
type Pool struct {
	cfg Config
	sem *semaphore.Weighted
}

// New returns a Pool. A MaxParallel <= 0 means unbounded (limited only by
// the number of jobs submitted).
func New(cfg Config) *Pool {
	limit := cfg.MaxParallel
	if limit <= 0 {
		limit = 1 << 30
	}
	return &Pool{cfg: cfg, sem: semaphore.NewWeighted(int64(limit))}
}

// Run executes jobs to completion, respecting Deps and MaxParallel. It
// returns one Result per job (in no particular order) plus an error when
// fewer than MinSuccessCount jobs succeeded. A job is run only after every
// dependency has produced a Result; if a dependency's Result carries an
// error, dependents are skipped and recorded with a "dependency failed"
// error rather than run. Ready jobs within the same wave start in
// lexicographic ID order, matching Plan.ReadyTasks' tiebreak.
func (p *Pool) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	if err := validateDeps(jobs); err != nil {
		return nil, err
	}

	byID := make(map[string]*Job, len(jobs))
	for i := range jobs {
		byID[jobs[i].ID] = &jobs[i]
	}

	var (
		mu       sync.Mutex
		results  = make(map[string]Result, len(jobs))
		done     = make(chan string, len(jobs))
		started  = make(map[string]bool, len(jobs))
		succeeded int
	)

	g, gctx := errgroup.WithContext(ctx)

	remaining := len(jobs)
	for remaining > 0 {
		ready := readyJobs(jobs, results, started)
		if len(ready) == 0 {
			mu.Lock()
			inFlight := 0
			for _, j := range jobs {
				if started[j.ID] {
					if _, ok := results[j.ID]; !ok {
						inFlight++
					}
				}
			}
			mu.Unlock()

			if inFlight > 0 {
				// Siblings are still running; a job with no Result yet might
				// still become ready once they finish. Wait for one before
				// reinterpreting "ready is empty" as "everything left is
				// doomed."
				id := <-done
				mu.Lock()
				remaining--
				if results[id].Err == nil {
					succeeded++
				}
				mu.Unlock()
				continue
			}

			// Nothing ready and nothing in flight: every unresolved job's
			// dependency chain genuinely bottoms out in a failure. Drain the
			// rest as dependency-failed so Run always returns one Result per
			// job.
			mu.Lock()
			for _, j := range jobs {
				if _, ok := results[j.ID]; !ok && !started[j.ID] {
					results[j.ID] = Result{JobID: j.ID, Err: fmt.Errorf("workerpool: %s skipped, a dependency failed", j.ID)}
					remaining--
				}
			}
			mu.Unlock()
			if remaining == 0 {
				break
			}
			continue
		}

		for _, j := range ready {
			j := j
			mu.Lock()
			started[j.ID] = true
			mu.Unlock()

			if err := p.sem.Acquire(gctx, 1); err != nil {
				mu.Lock()
				results[j.ID] = Result{JobID: j.ID, Err: err}
				remaining--
				mu.Unlock()
				done <- j.ID
				continue
			}

			g.Go(func() error {
				defer p.sem.Release(1)
				artifact, err := j.Run(gctx)
				mu.Lock()
				results[j.ID] = Result{JobID: j.ID, Artifact: artifact, Err: err}
				mu.Unlock()
				done <- j.ID
				return nil
			})
		}

		id := <-done
		mu.Lock()
		remaining--
		if results[id].Err == nil {
			succeeded++
		}
		mu.Unlock()
	}

	_ = g.Wait()

	out := make([]Result, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, results[j.ID])
	}

	threshold := p.cfg.MinSuccessCount
	if threshold <= 0 {
		threshold = len(jobs)
	}
	if succeeded < threshold {
		for _, r := range out {
			if r.Err != nil {
				return out, fmt.Errorf("workerpool: only %d/%d jobs succeeded, need %d: %w", succeeded, len(jobs), threshold, r.Err)
			}
		}
		return out, fmt.Errorf("workerpool: only %d/%d jobs succeeded, need %d", succeeded, len(jobs), threshold)
	}
	return out, nil
}

// readyJobs returns jobs not yet started whose every dependency has a
// successful Result, sorted lexicographically by ID.
func readyJobs(jobs []Job, results map[string]Result, started map[string]bool) []Job {
	var ready []Job
	for _, j := range jobs {
		if started[j.ID] {
			continue
		}
		allDepsOK := true
		for _, dep := range j.Deps {
			r, ok := results[dep]
			if !ok || r.Err != nil {
				allDepsOK = false
				break
			}
		}
		if allDepsOK {
			ready = append(ready, j)
		}
	}
	sort.Slice(ready, func(i, k int) bool { return ready[i].ID < ready[k].ID })
	return ready
}

// validateDeps checks every Dep names a Job present in the same batch.
func validateDeps(jobs []Job) error {
	ids := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if ids[j.ID] {
			return fmt.Errorf("workerpool: duplicate job id %q", j.ID)
		}
		ids[j.ID] = true
	}
	for _, j := range jobs {
		for _, dep := range j.Deps {
			if !ids[dep] {
				return fmt.Errorf("workerpool: job %q depends on unknown job %q", j.ID, dep)
			}
		}
	}
	return nil
}
