package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"routeopt/internal/model"
	"routeopt/internal/opt"
	"routeopt/internal/store"
	"routeopt/internal/vrp"
	"routeopt/internal/webhooks"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.JobEvent
}

func (r *recordingNotifier) Publish(jobID string, ev model.JobEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func uniform(n int, v int64) [][]int64 {
	m := make([][]int64, n)
	for i := range m {
		m[i] = make([]int64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = v
			}
		}
	}
	return m
}

func fourNodeRequest() model.SolveRequest {
	windows := make([]vrp.Interval, 4)
	for i := range windows {
		windows[i] = vrp.Interval{Start: 0, Stop: 100}
	}
	return model.SolveRequest{
		Costs:             uniform(4, 1),
		Durations:         uniform(4, 1),
		TimeWindows:       windows,
		Demands:           model.Demands{Vector: []int64{0, 1, 1, 1}},
		NumNodes:          4,
		NumVehicles:       1,
		TimeHorizon:       100,
		VehicleCapacities: []int64{10},
		RouteLocks:        [][]int{{}},
	}
}

func newTestService(t *testing.T) (*Service, *store.Memory, *recordingNotifier) {
	t.Helper()
	st := store.NewMemory()
	events := &recordingNotifier{}
	svc, err := NewService(st, events, webhooks.NewPublisher(st), Options{
		MaxConcurrent:   2,
		MatrixCacheSize: 4,
		Defaults:        vrp.SearchParameters{TimeLimit: 2 * time.Second},
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, st, events
}

func TestSolveSucceeds(t *testing.T) {
	svc, st, events := newTestService(t)
	ctx := context.Background()

	job, err := svc.Solve(ctx, "t1", fourNodeRequest())
	require.NoError(t, err)
	require.Equal(t, model.JobSucceeded, job.Status)
	require.Equal(t, "success", job.SolverStatus)
	require.Equal(t, string(vrp.StrategyExact), job.Strategy)
	require.NotNil(t, job.Result)
	require.EqualValues(t, 4, job.Result.Cost)
	require.ElementsMatch(t, []int{1, 2, 3}, job.Result.Routes[0])
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)

	require.Equal(t, []string{model.EventSolveStarted, model.EventSolveCompleted}, events.types())

	m, ok := opt.GetMetrics(job.ID)
	require.True(t, ok)
	require.True(t, m.ExactComplete)
	saved, err := st.ListSearchMetrics(ctx, "t1", job.ID)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Equal(t, "exact", saved[0]["strategy"])

	// another tenant cannot see it
	_, err = svc.Get(ctx, "t2", job.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSolveReportsValidationReason(t *testing.T) {
	svc, _, events := newTestService(t)
	req := fourNodeRequest()
	req.RouteLocks = nil

	job, err := svc.Solve(context.Background(), "t1", req)
	require.NoError(t, err)
	require.Equal(t, model.JobFailed, job.Status)
	require.Equal(t, string(vrp.ReasonLockCountMismatch), job.Error)
	require.Equal(t, "invalid", job.SolverStatus)
	require.Nil(t, job.Result)
	require.Contains(t, events.types(), model.EventSolveFailed)
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := fourNodeRequest()
	req.Search = &model.SearchOptions{Strategy: "tabu"}
	_, err := svc.Submit(ctx, "t1", req)
	require.ErrorIs(t, err, ErrBadRequest)

	req = fourNodeRequest()
	req.Costs[2] = req.Costs[2][:3]
	_, err = svc.Submit(ctx, "t1", req)
	require.Equal(t, vrp.ReasonDimensionMismatch, vrp.ReasonOf(err))

	req = fourNodeRequest()
	req.Costs, req.Durations = nil, nil
	req.MatrixSetID = "missing"
	_, err = svc.Submit(ctx, "t1", req)
	require.ErrorIs(t, err, ErrBadRequest)

	jobs, _, err := svc.List(ctx, "t1", "", "", 10)
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestMatrixSetIsSharedAcrossSolves(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	set, err := svc.SaveMatrixSet(ctx, "t1", model.MatrixSetRequest{Costs: uniform(4, 1), Durations: uniform(4, 1)})
	require.NoError(t, err)
	require.Equal(t, 1, svc.cache.Len())

	_, err = svc.SaveMatrixSet(ctx, "t1", model.MatrixSetRequest{Costs: uniform(4, 1), Durations: uniform(3, 1)})
	require.Equal(t, vrp.ReasonDimensionMismatch, vrp.ReasonOf(err))

	for range 2 {
		req := fourNodeRequest()
		req.Costs, req.Durations = nil, nil
		req.MatrixSetID = set.ID
		job, err := svc.Solve(ctx, "t1", req)
		require.NoError(t, err)
		require.Equal(t, model.JobSucceeded, job.Status)
		require.Equal(t, set.ID, job.MatrixSetID)
	}

	// other tenants cannot reference it
	req := fourNodeRequest()
	req.Costs, req.Durations = nil, nil
	req.MatrixSetID = set.ID
	_, err = svc.Submit(ctx, "t2", req)
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestCallbackIsEnqueued(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	req := fourNodeRequest()
	req.CallbackURL = "http://example.invalid/done"
	req.CallbackSecret = "s"

	job, err := svc.Solve(ctx, "t1", req)
	require.NoError(t, err)

	items, _, err := st.ListWebhookDeliveries(ctx, "t1", "", "", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, model.EventSolveCompleted, items[0]["eventType"])
	require.Equal(t, job.ID, items[0]["jobId"])
}

func TestWaitHonoursContext(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := fourNodeRequest()
	req.Search = &model.SearchOptions{Strategy: "alns", IterationLimit: 100}
	job, err := svc.Submit(context.Background(), "t1", req)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Wait(ctx, "t1", job.ID); err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}

	done, err := svc.Wait(context.Background(), "t1", job.ID)
	require.NoError(t, err)
	require.True(t, done.Status.Done())
}

func TestWaitChecksTenantFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := fourNodeRequest()
	req.Search = &model.SearchOptions{Strategy: "alns", IterationLimit: 1_000_000, TimeLimitMs: 1000}
	job, err := svc.Submit(context.Background(), "t1", req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = svc.Wait(ctx, "t2", job.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	done, err := svc.Wait(context.Background(), "t1", job.ID)
	require.NoError(t, err)
	require.True(t, done.Status.Done())
}

func TestSearchParametersOverlay(t *testing.T) {
	p, err := searchParameters(vrp.DefaultSearchParameters(), &model.SearchOptions{Strategy: "greedy", TimeLimitMs: 250, Seed: 7})
	require.NoError(t, err)
	require.Equal(t, vrp.StrategyGreedy, p.Strategy)
	require.Equal(t, 250*time.Millisecond, p.TimeLimit)
	require.EqualValues(t, 7, p.Seed)
	require.Equal(t, vrp.DefaultSearchParameters().IterationLimit, p.IterationLimit)
}
