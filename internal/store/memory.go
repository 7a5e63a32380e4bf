package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"routeopt/internal/model"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
	mu         sync.Mutex
	jobs       map[string]model.Job        // id -> job
	jobOrder   []string                    // creation order
	matrices   map[string]model.MatrixSet  // id -> matrix set
	searchMx   map[string][]map[string]any // job id -> metrics per strategy
	deliveries map[string]*memDelivery     // id -> delivery state
	order      []string                    // delivery ids in enqueue order
	dedup      map[string]string           // tenant|event|url|key -> delivery id
	dlq        []map[string]any            // dead-lettered deliveries
}

func NewMemory() *Memory {
	return &Memory{
		jobs:       map[string]model.Job{},
		matrices:   map[string]model.MatrixSet{},
		searchMx:   map[string][]map[string]any{},
		deliveries: map[string]*memDelivery{},
		dedup:      map[string]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) CreateJob(ctx context.Context, job model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		m.jobOrder = append(m.jobOrder, job.ID)
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *Memory) UpdateJob(ctx context.Context, job model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *Memory) GetJob(ctx context.Context, tenantID, id string) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.TenantID != tenantID {
		return model.Job{}, ErrNotFound
	}
	return j, nil
}

// ListJobs pages through jobs in creation order; the cursor is the id of
// the last job of the previous page.
func (m *Memory) ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := []model.Job{}
	started := cursor == ""
	for _, id := range m.jobOrder {
		if !started {
			started = id == cursor
			continue
		}
		j := m.jobs[id]
		if j.TenantID != tenantID || (status != "" && string(j.Status) != status) {
			continue
		}
		out = append(out, j)
		if len(out) == limit {
			return out, id, nil
		}
	}
	return out, "", nil
}

func (m *Memory) SaveMatrixSet(ctx context.Context, set model.MatrixSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matrices[set.ID] = set
	return nil
}

func (m *Memory) GetMatrixSet(ctx context.Context, tenantID, id string) (model.MatrixSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.matrices[id]
	if !ok || s.TenantID != tenantID {
		return model.MatrixSet{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) SaveSearchMetrics(ctx context.Context, tenantID, jobID, strategy string, metrics map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := map[string]any{}
	for k, v := range metrics {
		item[k] = v
	}
	item["tenantId"], item["jobId"], item["strategy"] = tenantID, jobID, strategy
	items := m.searchMx[jobID]
	for i := range items {
		if items[i]["strategy"] == strategy {
			items[i] = item
			return nil
		}
	}
	m.searchMx[jobID] = append(items, item)
	return nil
}

func (m *Memory) ListSearchMetrics(ctx context.Context, tenantID, jobID string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, it := range m.searchMx[jobID] {
		if it["tenantId"] == tenantID {
			out = append(out, it)
		}
	}
	return out, nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, jobID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
	if id, ok := m.dedup[key]; ok {
		return id, nil
	}
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, JobID: jobID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"},
		NextAttemptAt:   time.Now(),
	}
	m.order = append(m.order, id)
	m.dedup[key] = id
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = "failed"
	d.Attempts++
	d.LastError = lastError
	m.dlq = append(m.dlq, map[string]any{
		"id": uuid.New().String(), "deliveryId": id, "tenantId": d.TenantID, "jobId": d.JobID,
		"eventType": d.EventType, "url": d.URL, "attempts": d.Attempts, "lastError": lastError,
		"responseCode": responseCode, "latencyMs": latencyMs, "createdAt": time.Now().UTC(),
	})
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := []map[string]any{}
	started := cursor == ""
	for _, id := range m.order {
		if !started {
			started = id == cursor
			continue
		}
		d := m.deliveries[id]
		if d.TenantID != tenantID || (status != "" && d.Status != status) {
			continue
		}
		item := map[string]any{"id": d.ID, "jobId": d.JobID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
		if !d.NextAttemptAt.IsZero() {
			item["nextAttemptAt"] = d.NextAttemptAt
		}
		if d.LastError != "" {
			item["lastError"] = d.LastError
		}
		out = append(out, item)
		if len(out) == limit {
			return out, id, nil
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = "pending"
	d.NextAttemptAt = time.Now()
	return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	items := []map[string]any{}
	for _, it := range m.dlq {
		if it["tenantId"] == tenantID && (eventType == "" || it["eventType"] == eventType) {
			items = append(items, it)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i]["id"].(string) < items[j]["id"].(string) })
	out := []map[string]any{}
	for _, it := range items {
		if cursor != "" && it["id"].(string) <= cursor {
			continue
		}
		out = append(out, it)
		if len(out) == limit {
			return out, it["id"].(string), nil
		}
	}
	return out, "", nil
}

// RequeueWebhookDLQ moves a dead-lettered delivery back to pending.
func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.dlq {
		if it["id"] != id || it["tenantId"] != tenantID {
			continue
		}
		if d := m.deliveries[it["deliveryId"].(string)]; d != nil {
			d.Status = "pending"
			d.Attempts = 0
			d.NextAttemptAt = time.Now()
		}
		m.dlq = append(m.dlq[:i], m.dlq[i+1:]...)
		return nil
	}
	return ErrNotFound
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }
