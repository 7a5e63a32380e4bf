package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"routeopt/internal/model"
	"routeopt/internal/webhooks"
)

const (
	sseHeartbeat = 15 * time.Second
	wsPing       = 20 * time.Second
	wsReadWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribeJob subscribes to job events and then reloads the job, so a
// completion that lands between the two is seen either way. The returned
// event is non-nil when the job had already finished.
func (s *Server) subscribeJob(r *http.Request, job model.Job) (chan model.JobEvent, *model.JobEvent) {
	ch := s.Broker.Subscribe(job.ID)
	if latest, err := s.Jobs.Get(r.Context(), job.TenantID, job.ID); err == nil {
		job = latest
	}
	if job.Status.Done() {
		ev := webhooks.EventFor(job)
		return ch, &ev
	}
	return ch, nil
}

// streamEvents serves GET /v1/solves/{id}/events/stream as server-sent
// events until the job finishes or the client goes away.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, job model.Job) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch, final := s.subscribeJob(r, job)
	defer s.Broker.Unsubscribe(job.ID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(ev model.JobEvent) error {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if final != nil {
		_ = send(*final)
		return
	}

	hb := time.NewTicker(sseHeartbeat)
	defer hb.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := send(ev); err != nil {
				return
			}
			if ev.Status.Done() {
				return
			}
		case <-hb.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// streamWebSocket serves GET /v1/solves/{id}/ws. Each job event is sent as
// a "next" message; "complete" follows the terminal event.
func (s *Server) streamWebSocket(w http.ResponseWriter, r *http.Request, job model.Job) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch, final := s.subscribeJob(r, job)
	defer s.Broker.Unsubscribe(job.ID, ch)

	send := func(ev model.JobEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return conn.WriteJSON(wsMessage{Type: "next", Payload: payload})
	}
	complete := func() {
		_ = conn.WriteJSON(wsMessage{Type: "complete"})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}
	if final != nil {
		if send(*final) == nil {
			complete()
		}
		return
	}

	// reader: only pongs and close frames matter
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadWait)) })
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPing)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := send(ev); err != nil {
				s.Log.Debug("ws send failed", zap.String("job_id", job.ID), zap.Error(err))
				return
			}
			if ev.Status.Done() {
				complete()
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
