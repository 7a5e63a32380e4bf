package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"routeopt/internal/jobs"
	"routeopt/internal/model"
	"routeopt/internal/opt"
	"routeopt/internal/store"
	"routeopt/internal/vrp"
)

// decodeSolve reads and checks a solve request, writing a 400 on failure.
func decodeSolve(w http.ResponseWriter, r *http.Request) (model.SolveRequest, bool) {
	var req model.SolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return req, false
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return req, false
	}
	return req, true
}

// submitError maps errors returned before a job exists.
func submitError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case vrp.ReasonOf(err) != "":
		writeReason(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, jobs.ErrBadRequest):
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, "Submit failed", err.Error(), r.URL.Path)
	}
}

// SolveHandler handles POST /v1/solve: solve and answer with the solution
// or the failure reason.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	req, ok := decodeSolve(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.Config.SyncSolveTimeout)
	defer cancel()
	job, err := s.Jobs.Submit(ctx, p.Tenant, req)
	if err != nil {
		submitError(w, r, err)
		return
	}
	w.Header().Set("X-Job-Id", job.ID)
	done, err := s.Jobs.Wait(ctx, p.Tenant, job.ID)
	if err != nil {
		// the job keeps running; the caller can poll it
		if latest, gerr := s.Jobs.Get(r.Context(), p.Tenant, job.ID); gerr == nil {
			job = latest
		}
		w.Header().Set("Location", "/v1/solves/"+job.ID)
		writeJSON(w, http.StatusAccepted, job)
		return
	}
	job = done
	if job.Status == model.JobFailed {
		writeJSON(w, http.StatusUnprocessableEntity, model.ErrorResponse{Error: job.Error, Detail: job.ErrorDetail})
		return
	}
	writeJSON(w, http.StatusOK, job.Result)
}

// SolvesHandler handles POST (async submit) and GET (list) on /v1/solves.
func (s *Server) SolvesHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		req, ok := decodeSolve(w, r)
		if !ok {
			return
		}
		job, err := s.Jobs.Submit(r.Context(), p.Tenant, req)
		if err != nil {
			submitError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/solves/"+job.ID)
		writeJSON(w, http.StatusAccepted, job)
	case http.MethodGet:
		q := r.URL.Query()
		items, next, err := s.Jobs.List(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), queryLimit(r))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List solves failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SolveByIDHandler handles GET /v1/solves/{id} and its event streams.
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	job, err := s.Jobs.Get(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Solve not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get solve failed", err.Error(), r.URL.Path)
		return
	}
	switch {
	case len(parts) == 1:
		writeJSON(w, http.StatusOK, job)
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
		s.streamEvents(w, r, job)
	case len(parts) == 2 && parts[1] == "ws":
		s.streamWebSocket(w, r, job)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// SolverConfigHandler returns the search defaults applied to requests.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solver/config" || r.Method != http.MethodGet {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	d := s.Jobs.Defaults()
	writeJSON(w, http.StatusOK, map[string]any{
		"defaults": model.SearchOptions{
			Strategy:           string(d.Strategy),
			TimeLimitMs:        d.TimeLimit.Milliseconds(),
			IterationLimit:     d.IterationLimit,
			Seed:               d.Seed,
			InitialTemperature: d.InitialTemperature,
			Cooling:            d.Cooling,
			ExactNodeLimit:     d.ExactNodeLimit,
		},
		"strategies":          []vrp.Strategy{vrp.StrategyAuto, vrp.StrategyALNS, vrp.StrategyExact, vrp.StrategyGreedy},
		"maxConcurrentSolves": s.Config.MaxConcurrentSolves,
	})
}

// MatrixSetsHandler handles POST /v1/matrix-sets.
func (s *Server) MatrixSetsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req model.MatrixSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateMatrixSetRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid matrix set", err.Error(), r.URL.Path)
		return
	}
	set, err := s.Jobs.SaveMatrixSet(r.Context(), p.Tenant, req)
	if err != nil {
		if vrp.ReasonOf(err) != "" {
			writeReason(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Save matrix set failed", err.Error(), r.URL.Path)
		return
	}
	w.Header().Set("Location", "/v1/matrix-sets/"+set.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"id": set.ID, "size": len(set.Costs), "createdAt": set.CreatedAt})
}

// MatrixSetByIDHandler handles GET /v1/matrix-sets/{id}.
func (s *Server) MatrixSetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/matrix-sets/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	set, err := s.Jobs.GetMatrixSet(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Matrix set not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get matrix set failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// SearchMetricsHandler returns search metrics for one job (jobId) or the
// recent in-memory metrics of this process.
func (s *Server) SearchMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/search-metrics" || r.Method != http.MethodGet {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		items := []map[string]any{}
		for id, m := range opt.RecentMetrics() {
			items = append(items, map[string]any{"jobId": id, "strategy": m.Strategy, "iterations": m.Iterations,
				"bestCost": m.BestCost, "finalCost": m.FinalCost, "elapsedMs": m.ElapsedMs})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}
	// prefer persisted metrics; fall back to this process's memory
	items, err := s.Jobs.SearchMetrics(r.Context(), p.Tenant, jobID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Metrics failed", err.Error(), r.URL.Path)
		return
	}
	if len(items) == 0 {
		if _, err := s.Jobs.Get(r.Context(), p.Tenant, jobID); err == nil {
			if m, ok := opt.GetMetrics(jobID); ok {
				writeJSON(w, http.StatusOK, map[string]any{"items": []opt.Metrics{m}})
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	if rb, ok := s.Broker.(*RedisBroker); ok {
		if err := rb.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "store": s.storeKind})
}
