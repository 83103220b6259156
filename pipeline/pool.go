package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"newsxtract/filterspec"
	"newsxtract/newsml"
	"newsxtract/resolve"
)

// ErrTaskTimeout is the per-item error when a task exceeds its budget
// (spec.md §4.6, §7 TaskTimeout).
var ErrTaskTimeout = errors.New("task timeout")

// taskTimeout is the mandatory per-task upper bound (spec.md §4.6).
const taskTimeout = 30 * time.Second

// Deps bundles the collaborators a pool task calls into: the extractor is a
// free function (newsml.Extract), but the resolver and filter/move spec are
// injected so tests can substitute fakes.
type Deps struct {
	Resolver *resolve.Resolver
	Filter   *filterspec.Spec

	// DryRun skips the move (C5) a passing, move-enabled record would
	// otherwise trigger; the caller is responsible for also skipping the
	// CSV write (C7).
	DryRun bool
}

// Pool runs up to numWorkers concurrent tasks (C2+C3+C4+C5), enforcing a
// global — not per-chunk — parallelism bound via a counting semaphore, per
// spec.md §5. This generalizes the teacher's processFilesParallel jobs/
// results channel pattern, replacing its fixed goroutine-per-worker loop
// with a semaphore so the bound holds across overlapping chunk dispatches.
type Pool struct {
	sem  *semaphore.Weighted
	deps Deps
}

// NewPool builds a pool clamped to [1, 16] concurrent tasks (spec.md §5).
func NewPool(numWorkers int, deps Deps) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > 16 {
		numWorkers = 16
	}
	return &Pool{sem: semaphore.NewWeighted(int64(numWorkers)), deps: deps}
}

// Submit dispatches items concurrently (bounded by the pool's semaphore,
// shared across every Submit call so the bound holds globally rather than
// per chunk) and streams each item's ResultEnvelope to results as it
// completes. Submit blocks until every item in this call has been dispatched
// AND every dispatched task has finished sending its result — the caller can
// safely close results (or dispatch the next batch) the moment Submit
// returns. results is not closed by Submit; the caller (the scheduler) owns
// the channel's lifetime across multiple Submit calls in chunked mode.
//
// Submit is safe to call with a single-item slice from a producer loop that
// wants per-item suspension checks (spec.md §4.8): the bounding semaphore is
// shared across calls, so a dispatcher that fires one goroutine per
// single-item Submit call (rather than awaiting each call in turn) still
// runs up to numWorkers tasks concurrently — see engine.runBatch.
func (p *Pool) Submit(ctx context.Context, items []WorkItem, workerIDBase int, results chan<- ResultEnvelope) {
	var wg sync.WaitGroup
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}
		workerID := workerIDBase + i
		item.WorkerID = workerID
		wg.Add(1)
		go func(item WorkItem, workerID int) {
			defer wg.Done()
			defer p.sem.Release(1)
			results <- p.runTask(ctx, item, workerID)
		}(item, workerID)
	}
	wg.Wait()
}

// runTask executes C2+C3+C4+C5 for one WorkItem under a hard 30s timeout.
func (p *Pool) runTask(ctx context.Context, item WorkItem, workerID int) ResultEnvelope {
	start := time.Now()
	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	type outcome struct {
		env ResultEnvelope
	}
	done := make(chan outcome, 1)

	go func() {
		done <- outcome{env: p.process(taskCtx, item, workerID)}
	}()

	select {
	case o := <-done:
		o.env.Elapsed = time.Since(start)
		return o.env
	case <-taskCtx.Done():
		return ResultEnvelope{Item: item, Err: ErrTaskTimeout, WorkerID: workerID, Elapsed: time.Since(start)}
	}
}

func (p *Pool) process(ctx context.Context, item WorkItem, workerID int) ResultEnvelope {
	xmlBytes, err := readWorkItem(item)
	if err != nil {
		return ResultEnvelope{Item: item, Err: err, WorkerID: workerID}
	}

	rec, err := newsml.Extract(xmlBytes, item.Origin)
	if err != nil {
		return ResultEnvelope{Item: item, Err: err, WorkerID: workerID}
	}

	res := p.deps.Resolver.Resolve(ctx, rec, item.Origin, item.PreboundImagePath)
	rec.ImagePath = res.ActualImagePath
	rec.ActualFileSize = res.ActualFileSize
	if res.ImageExists {
		rec.ImageExists = "Yes"
	} else {
		rec.ImageExists = "No"
	}

	verdict := filterspec.Evaluate(p.deps.Filter, rec)

	env := ResultEnvelope{Item: item, Record: rec, Passed: verdict.Passed, WorkerID: workerID}

	if verdict.Passed && !p.deps.DryRun && p.deps.Filter.Move.Enabled && res.ImageExists {
		dest, moved, moveErr := Move(MoveRequest{
			ActualImagePath: res.ActualImagePath,
			Destination:     p.deps.Filter.Move.Destination,
			Layout:          string(p.deps.Filter.Move.Layout),
			OriginalRoot:    item.OriginalRoot,
			SourceDir:       filepath.Dir(res.ActualImagePath),
		})
		if moveErr == nil && moved {
			env.Moved = true
			rec.ImagePath = dest
		}
		// MoveFailed is non-fatal (spec.md §7): the record is still emitted
		// and movedFiles is simply not incremented.
	}

	return env
}

func readWorkItem(item WorkItem) ([]byte, error) {
	return os.ReadFile(item.Path())
}
