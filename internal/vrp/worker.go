package vrp

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Result is the single completion value of a Worker: either a solution or
// an error carrying a Reason.
type Result struct {
	Solution *Solution
	Err      error
	Status   Status
	Elapsed  time.Duration
}

// Worker runs one solve end to end: validate, build, lock, search and
// extract. A Worker is used once.
type Worker struct {
	Input  Input
	Params SearchParameters
	Model  ModelParameters
	Solver Solver
	Logger *zap.Logger
	// Label identifies the solve in logs.
	Label string
	// OnStart, if set, is called once the worker holds a search slot.
	OnStart func()
}

func (w *Worker) Run() Result {
	if w.OnStart != nil {
		w.OnStart()
	}
	started := time.Now()
	res := w.run()
	res.Elapsed = time.Since(started)

	log := w.Logger
	if log == nil {
		log = zap.NewNop()
	}
	fields := []zap.Field{
		zap.String("job", w.Label),
		zap.Stringer("status", res.Status),
		zap.Duration("duration", res.Elapsed),
	}
	if res.Err != nil {
		log.Info("solve failed", append(fields, zap.String("reason", string(ReasonOf(res.Err))))...)
	} else {
		log.Info("solve done", append(fields, zap.Int64("cost", res.Solution.Cost))...)
	}
	return res
}

func (w *Worker) run() Result {
	if err := Validate(w.Input); err != nil {
		return Result{Err: err, Status: StatusInvalid}
	}
	m, err := BuildModel(w.Input, w.Model)
	if err != nil {
		return Result{Err: err, Status: StatusInvalid}
	}
	if !m.ApplyLocksToAllVehicles(w.Input.RouteLocks, false) {
		return Result{Err: ErrInvalidLocks, Status: StatusInvalid}
	}
	a := m.SolveWithParameters(w.Solver, w.Params)
	if a == nil || m.Status() != StatusSuccess {
		return Result{Err: ErrNoSolutionFound, Status: m.Status()}
	}
	sol := ExtractSolution(m, a)
	return Result{Solution: &sol, Status: m.Status()}
}

// Dispatcher runs workers off the caller's goroutine with at most a fixed
// number of searches in flight.
type Dispatcher struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewDispatcher(maxConcurrent int64) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Dispatcher{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Submit schedules w and returns a channel that receives exactly one
// Result. ctx only bounds the wait for a free slot; a running search is
// bounded by its own time limit.
func (d *Dispatcher) Submit(ctx context.Context, w *Worker) <-chan Result {
	out := make(chan Result, 1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			out <- Result{Err: err, Status: StatusNotSolved}
			return
		}
		defer d.sem.Release(1)
		out <- w.Run()
	}()
	return out
}

// Wait blocks until every submitted worker has delivered its result.
func (d *Dispatcher) Wait() { d.wg.Wait() }
