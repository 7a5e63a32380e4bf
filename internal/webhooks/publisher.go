// Package webhooks delivers solve completion callbacks.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"routeopt/internal/model"
	"routeopt/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// EmitJob enqueues a callback for a finished job to its callback URL. The
// event id is derived from the job so repeated emits are deduplicated by
// the store.
func (p *Publisher) EmitJob(ctx context.Context, job model.Job, secret string) (string, error) {
	if job.CallbackURL == "" {
		return "", nil
	}
	ev := EventFor(job)
	body, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return p.Store.EnqueueWebhook(ctx, job.TenantID, job.ID, ev.Type, job.CallbackURL, secret, body)
}

// EventFor builds the completion event for a finished job.
func EventFor(job model.Job) model.JobEvent {
	typ := model.EventSolveCompleted
	if job.Status == model.JobFailed {
		typ = model.EventSolveFailed
	}
	return model.JobEvent{
		ID:       "evt_" + job.ID + "_" + typ,
		Type:     typ,
		TenantID: job.TenantID,
		JobID:    job.ID,
		Status:   job.Status,
		Error:    job.Error,
		Result:   job.Result,
		TS:       time.Now().UTC().Format(time.RFC3339),
	}
}
