package store

import (
	"context"
	"errors"
	"time"

	"routeopt/internal/model"
)

// Store is the persistence interface used by the job service, the API
// server and the webhook worker.
type Store interface {
	// Solve jobs
	CreateJob(ctx context.Context, job model.Job) error
	UpdateJob(ctx context.Context, job model.Job) error
	GetJob(ctx context.Context, tenantID, id string) (model.Job, error)
	ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error)

	// Shared matrices
	SaveMatrixSet(ctx context.Context, set model.MatrixSet) error
	GetMatrixSet(ctx context.Context, tenantID, id string) (model.MatrixSet, error)

	// Search metrics
	SaveSearchMetrics(ctx context.Context, tenantID, jobID, strategy string, metrics map[string]any) error
	ListSearchMetrics(ctx context.Context, tenantID, jobID string) ([]map[string]any, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, jobID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

	// Dead-letter queue
	ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error)
	RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error

	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("not found")

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
