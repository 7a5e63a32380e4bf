package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"routeopt/internal/model"
	"routeopt/internal/store"
	"routeopt/internal/vrp"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
	Next          *time.Time
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError, Next: nextAttemptAt})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func finishedJob(url string) model.Job {
	return model.Job{
		ID: "job1", TenantID: "t1", Status: model.JobSucceeded, CallbackURL: url,
		Result: &vrp.Solution{Cost: 4, Routes: [][]int{{1, 2, 3}}},
	}
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 3, time.Second, nil)
	w.HTTP = srv.Client()
	id, err := NewPublisher(rs).EmitJob(context.Background(), finishedJob(srv.URL), "secret")
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce(context.Background())

	if gotType != model.EventSolveCompleted {
		t.Fatalf("event type header: got %q", gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 2, time.Second, nil)
	w.HTTP = srv.Client()
	job := finishedJob(srv.URL)
	job.Status = model.JobFailed
	id, _ := NewPublisher(rs).EmitJob(context.Background(), job, "")

	w.processOnce(context.Background())
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 || rs.marks[0].Next == nil {
		t.Fatalf("expected one retry mark, got: %+v", rs.marks)
	}

	// make it due again and exhaust the attempts
	if err := rs.RetryWebhookDelivery(context.Background(), "t1", id); err != nil {
		t.Fatalf("retry: %v", err)
	}
	w.processOnce(context.Background())
	if len(rs.fails) != 1 || rs.fails[0].ID != id {
		t.Fatalf("expected fail recorded, got: %+v", rs.fails)
	}
	dlq, _, _ := rs.ListWebhookDLQ(context.Background(), "t1", model.EventSolveFailed, "", 10)
	if len(dlq) != 1 {
		t.Fatalf("expected one DLQ entry, got %d", len(dlq))
	}
}

func TestEmitJobWithoutCallbackIsNoop(t *testing.T) {
	rs := &recordStore{Memory: store.NewMemory()}
	id, err := NewPublisher(rs).EmitJob(context.Background(), finishedJob(""), "")
	if err != nil || id != "" {
		t.Fatalf("expected no-op, got %q %v", id, err)
	}
}

func TestNextBackoff(t *testing.T) {
	if d := nextBackoff(0); d != time.Second {
		t.Fatalf("attempt 0: got %v", d)
	}
	if d := nextBackoff(3); d != 8*time.Second {
		t.Fatalf("attempt 3: got %v", d)
	}
	if d := nextBackoff(50); d != 1024*time.Second {
		t.Fatalf("capped: got %v", d)
	}
}
