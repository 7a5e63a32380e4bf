// Package jobs runs solve requests as tracked jobs: it resolves shared
// matrices, dispatches workers with bounded concurrency and records the
// outcome in the store, the event broker and webhook callbacks.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"routeopt/internal/metrics"
	"routeopt/internal/model"
	"routeopt/internal/opt"
	"routeopt/internal/store"
	"routeopt/internal/vrp"
	"routeopt/internal/webhooks"
)

// Notifier receives job lifecycle events keyed by job id.
type Notifier interface {
	Publish(jobID string, ev model.JobEvent)
}

type Options struct {
	MaxConcurrent   int64
	MatrixCacheSize int
	Defaults        vrp.SearchParameters
	Model           vrp.ModelParameters
}

type Service struct {
	store    store.Store
	cache    *MatrixCache
	dispatch *vrp.Dispatcher
	events   Notifier
	hooks    *webhooks.Publisher
	opts     Options
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]chan struct{} // closed when the job finishes
}

func NewService(st store.Store, events Notifier, hooks *webhooks.Publisher, opts Options, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MatrixCacheSize <= 0 {
		opts.MatrixCacheSize = 128
	}
	cache, err := NewMatrixCache(opts.MatrixCacheSize)
	if err != nil {
		return nil, fmt.Errorf("matrix cache: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    st,
		cache:    cache,
		dispatch: vrp.NewDispatcher(opts.MaxConcurrent),
		events:   events,
		hooks:    hooks,
		opts:     opts,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		pending:  map[string]chan struct{}{},
	}, nil
}

// Defaults reports the search parameters applied to requests without
// search options.
func (s *Service) Defaults() vrp.SearchParameters { return s.opts.Defaults.WithDefaults() }

// Close stops accepting queued work and waits for running solves.
func (s *Service) Close() {
	s.cancel()
	s.dispatch.Wait()
}

// Submit creates a queued job for req and schedules it. Requests whose
// matrices cannot be resolved or whose search options are malformed are
// rejected without creating a job.
func (s *Service) Submit(ctx context.Context, tenantID string, req model.SolveRequest) (model.Job, error) {
	params, err := searchParameters(s.Defaults(), req.Search)
	if err != nil {
		return model.Job{}, err
	}
	mats, err := s.resolveMatrices(ctx, tenantID, req)
	if err != nil {
		return model.Job{}, err
	}
	in, err := buildInput(req, mats)
	if err != nil {
		return model.Job{}, err
	}
	modelParams := s.opts.Model
	if req.MaxWaitTime != nil {
		modelParams.MaxWaitTime = req.MaxWaitTime
	}

	job := model.Job{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Status:      model.JobQueued,
		Strategy:    string(params.Strategy),
		NumNodes:    req.NumNodes,
		NumVehicles: req.NumVehicles,
		MatrixSetID: req.MatrixSetID,
		CallbackURL: req.CallbackURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("create job: %w", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.pending[job.ID] = done
	s.mu.Unlock()

	backend := opt.NewBackend(s.log.Named("opt"))
	w := &vrp.Worker{
		Input:  in,
		Params: params,
		Model:  modelParams,
		Solver: backend,
		Logger: s.log,
		Label:  job.ID,
	}
	w.OnStart = func() { s.markRunning(job) }
	results := s.dispatch.Submit(s.ctx, w)
	go func() {
		res := <-results
		s.finish(job, res, backend.Metrics(), req.CallbackSecret)
		s.mu.Lock()
		delete(s.pending, job.ID)
		s.mu.Unlock()
		close(done)
	}()
	return job, nil
}

// Solve submits req and waits for it to finish.
func (s *Service) Solve(ctx context.Context, tenantID string, req model.SolveRequest) (model.Job, error) {
	job, err := s.Submit(ctx, tenantID, req)
	if err != nil {
		return job, err
	}
	return s.Wait(ctx, tenantID, job.ID)
}

// Wait blocks until the job is done or ctx ends, then returns its latest
// state. Jobs of another tenant report store.ErrNotFound without blocking.
func (s *Service) Wait(ctx context.Context, tenantID, id string) (model.Job, error) {
	job, err := s.store.GetJob(ctx, tenantID, id)
	if err != nil || job.Status.Done() {
		return job, err
	}
	s.mu.Lock()
	done, ok := s.pending[id]
	s.mu.Unlock()
	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return model.Job{}, ctx.Err()
		}
	}
	return s.store.GetJob(context.WithoutCancel(ctx), tenantID, id)
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (model.Job, error) {
	return s.store.GetJob(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error) {
	return s.store.ListJobs(ctx, tenantID, status, cursor, limit)
}

// SaveMatrixSet stores a matrix pair for reuse by later requests.
func (s *Service) SaveMatrixSet(ctx context.Context, tenantID string, req model.MatrixSetRequest) (model.MatrixSet, error) {
	mats, err := newMatrices(req.Costs, req.Durations)
	if err != nil {
		return model.MatrixSet{}, err
	}
	if mats.Costs.Dim() != mats.Durations.Dim() {
		return model.MatrixSet{}, fmt.Errorf("costs are %dx%d but durations are %dx%d: %w",
			mats.Costs.Dim(), mats.Costs.Dim(), mats.Durations.Dim(), mats.Durations.Dim(), vrp.ErrDimensionMismatch)
	}
	set := model.MatrixSet{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Costs:     req.Costs,
		Durations: req.Durations,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveMatrixSet(ctx, set); err != nil {
		return model.MatrixSet{}, fmt.Errorf("save matrix set: %w", err)
	}
	s.cache.Add(tenantID, set.ID, mats)
	return set, nil
}

func (s *Service) GetMatrixSet(ctx context.Context, tenantID, id string) (model.MatrixSet, error) {
	return s.store.GetMatrixSet(ctx, tenantID, id)
}

func (s *Service) SearchMetrics(ctx context.Context, tenantID, jobID string) ([]map[string]any, error) {
	return s.store.ListSearchMetrics(ctx, tenantID, jobID)
}

func (s *Service) resolveMatrices(ctx context.Context, tenantID string, req model.SolveRequest) (*Matrices, error) {
	if req.MatrixSetID == "" {
		return newMatrices(req.Costs, req.Durations)
	}
	if m, ok := s.cache.Get(tenantID, req.MatrixSetID); ok {
		return m, nil
	}
	set, err := s.store.GetMatrixSet(ctx, tenantID, req.MatrixSetID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: matrix set %s not found", ErrBadRequest, req.MatrixSetID)
	}
	if err != nil {
		return nil, err
	}
	m, err := newMatrices(set.Costs, set.Durations)
	if err != nil {
		return nil, err
	}
	s.cache.Add(tenantID, set.ID, m)
	return m, nil
}

func (s *Service) markRunning(job model.Job) {
	now := time.Now().UTC()
	job.Status = model.JobRunning
	job.StartedAt = &now
	metrics.SolvesInFlight.Inc()
	if err := s.store.UpdateJob(s.ctx, job); err != nil {
		s.log.Warn("mark job running", zap.String("job", job.ID), zap.Error(err))
	}
	s.publish(job, model.EventSolveStarted)
}

func (s *Service) finish(job model.Job, res vrp.Result, m opt.Metrics, secret string) {
	// the store must see the outcome even while shutting down
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	started := now.Add(-res.Elapsed)
	if res.Status != vrp.StatusNotSolved {
		metrics.SolvesInFlight.Dec()
		job.StartedAt = &started
	}
	job.FinishedAt = &now
	job.ElapsedMs = res.Elapsed.Milliseconds()
	job.SolverStatus = res.Status.String()
	if m.Strategy != "" {
		job.Strategy = m.Strategy
	}
	reason := ""
	if res.Err != nil {
		job.Status = model.JobFailed
		reason = string(vrp.ReasonOf(res.Err))
		job.Error = reason
		if job.Error == "" {
			job.Error = "Cancelled"
		}
		job.ErrorDetail = res.Err.Error()
	} else {
		job.Status = model.JobSucceeded
		job.Result = res.Solution
	}

	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.log.Error("persist job result", zap.String("job", job.ID), zap.Error(err))
	}
	metrics.Solves.WithLabelValues(job.SolverStatus, reason).Inc()
	metrics.SolveDuration.WithLabelValues(job.Strategy).Observe(res.Elapsed.Seconds())

	if m.Strategy != "" {
		opt.RecordMetrics(job.ID, m)
		if err := s.store.SaveSearchMetrics(ctx, job.TenantID, job.ID, m.Strategy, metricsMap(m)); err != nil {
			s.log.Warn("persist search metrics", zap.String("job", job.ID), zap.Error(err))
		}
	}

	ev := webhooks.EventFor(job)
	s.publish(job, ev.Type)
	if s.hooks != nil && job.CallbackURL != "" {
		if _, err := s.hooks.EmitJob(ctx, job, secret); err != nil {
			s.log.Warn("enqueue callback", zap.String("job", job.ID), zap.Error(err))
		}
	}
}

func (s *Service) publish(job model.Job, typ string) {
	if s.events == nil {
		return
	}
	ev := webhooks.EventFor(job)
	ev.ID, ev.Type = "evt_"+job.ID+"_"+typ, typ
	s.events.Publish(job.ID, ev)
}

func metricsMap(m opt.Metrics) map[string]any {
	b, _ := json.Marshal(m)
	out := map[string]any{}
	_ = json.Unmarshal(b, &out)
	return out
}
