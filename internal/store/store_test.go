package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"routeopt/internal/model"
	"routeopt/internal/vrp"
)

// exerciseStore runs the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := t.Context()
	tenant := "t_" + uuid.NewString()[:8]

	job := model.Job{ID: uuid.NewString(), TenantID: tenant, Status: model.JobQueued, NumNodes: 4, NumVehicles: 1,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := s.GetJob(ctx, "other", job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetJob from another tenant: want ErrNotFound, got %v", err)
	}

	done := time.Now().UTC().Truncate(time.Millisecond)
	job.Status = model.JobSucceeded
	job.Strategy = "exact"
	job.SolverStatus = "success"
	job.FinishedAt = &done
	job.Result = &vrp.Solution{Cost: 4, Routes: [][]int{{1, 2, 3}}, Times: [][]vrp.Interval{{{Start: 1, Stop: 1}, {Start: 2, Stop: 2}, {Start: 3, Stop: 3}}}}
	if err := s.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	got, err := s.GetJob(ctx, tenant, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobSucceeded || got.Result == nil || got.Result.Cost != 4 {
		t.Fatalf("unexpected job after update: %+v", got)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(done) {
		t.Fatalf("finishedAt not persisted: %v", got.FinishedAt)
	}

	second := model.Job{ID: uuid.NewString(), TenantID: tenant, Status: model.JobQueued, NumNodes: 2, NumVehicles: 1, CreatedAt: time.Now()}
	if err := s.CreateJob(ctx, second); err != nil {
		t.Fatalf("CreateJob second: %v", err)
	}
	page, next, err := s.ListJobs(ctx, tenant, "", "", 1)
	if err != nil || len(page) != 1 || next == "" {
		t.Fatalf("first page: %v %d %q", err, len(page), next)
	}
	rest, _, err := s.ListJobs(ctx, tenant, "", next, 10)
	if err != nil || len(rest) != 1 || rest[0].ID == page[0].ID {
		t.Fatalf("second page: %v %+v", err, rest)
	}
	queued, _, err := s.ListJobs(ctx, tenant, string(model.JobQueued), "", 10)
	if err != nil || len(queued) != 1 || queued[0].ID != second.ID {
		t.Fatalf("status filter: %v %+v", err, queued)
	}

	set := model.MatrixSet{ID: uuid.NewString(), TenantID: tenant, Costs: [][]int64{{0, 1}, {1, 0}}, Durations: [][]int64{{0, 2}, {2, 0}}, CreatedAt: time.Now()}
	if err := s.SaveMatrixSet(ctx, set); err != nil {
		t.Fatalf("SaveMatrixSet: %v", err)
	}
	gotSet, err := s.GetMatrixSet(ctx, tenant, set.ID)
	if err != nil || gotSet.Durations[0][1] != 2 {
		t.Fatalf("GetMatrixSet: %v %+v", err, gotSet)
	}

	if err := s.SaveSearchMetrics(ctx, tenant, job.ID, "exact", map[string]any{"expanded": 12}); err != nil {
		t.Fatalf("SaveSearchMetrics: %v", err)
	}
	if err := s.SaveSearchMetrics(ctx, tenant, job.ID, "exact", map[string]any{"expanded": 20}); err != nil {
		t.Fatalf("SaveSearchMetrics overwrite: %v", err)
	}
	sm, err := s.ListSearchMetrics(ctx, tenant, job.ID)
	if err != nil || len(sm) != 1 || sm[0]["strategy"] != "exact" {
		t.Fatalf("ListSearchMetrics: %v %+v", err, sm)
	}

	payload := []byte(`{"id":"evt_` + job.ID + `"}`)
	id, err := s.EnqueueWebhook(ctx, tenant, job.ID, model.EventSolveCompleted, "http://example.invalid/hook", "", payload)
	if err != nil {
		t.Fatalf("EnqueueWebhook: %v", err)
	}
	dup, err := s.EnqueueWebhook(ctx, tenant, job.ID, model.EventSolveCompleted, "http://example.invalid/hook", "", payload)
	if err != nil || dup != id {
		t.Fatalf("duplicate enqueue: want %s, got %s (%v)", id, dup, err)
	}
	due, err := s.FetchDueWebhookDeliveries(ctx, 100)
	if err != nil || !containsDelivery(due, id) {
		t.Fatalf("FetchDue: %v %+v", err, due)
	}
	later := time.Now().Add(time.Hour)
	if err := s.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 3); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	due, _ = s.FetchDueWebhookDeliveries(ctx, 100)
	if containsDelivery(due, id) {
		t.Fatalf("delivery scheduled later should not be due")
	}
	if err := s.FailWebhookDelivery(ctx, id, "gave up", 500, 3); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	dlq, _, err := s.ListWebhookDLQ(ctx, tenant, "", "", 10)
	if err != nil || len(dlq) != 1 {
		t.Fatalf("ListWebhookDLQ: %v %+v", err, dlq)
	}
	if err := s.RequeueWebhookDLQ(ctx, tenant, dlq[0]["id"].(string)); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	due, _ = s.FetchDueWebhookDeliveries(ctx, 100)
	if !containsDelivery(due, id) {
		t.Fatalf("requeued delivery should be due")
	}
	if dlq, _, _ = s.ListWebhookDLQ(ctx, tenant, "", "", 10); len(dlq) != 0 {
		t.Fatalf("DLQ should be empty after requeue, got %d", len(dlq))
	}
	if err := s.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 1); err != nil {
		t.Fatalf("Mark success: %v", err)
	}
	list, _, err := s.ListWebhookDeliveries(ctx, tenant, "delivered", "", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListWebhookDeliveries: %v %+v", err, list)
	}
	if err := s.RetryWebhookDelivery(ctx, "other", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("retry from another tenant: want ErrNotFound, got %v", err)
	}
}

func containsDelivery(ds []WebhookDelivery, id string) bool {
	for _, d := range ds {
		if d.ID == id {
			return true
		}
	}
	return false
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "routeopt.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer s.Close()
	if err := s.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// idempotent
	if err := s.Migrate(t.Context()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	exerciseStore(t, s)
}
