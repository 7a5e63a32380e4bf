package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"routeopt/internal/model"
	"routeopt/internal/vrp"
)

// dialect captures the few differences between the SQL backends.
type dialect struct {
	name       string
	blob       string
	dollarArgs bool
}

var (
	postgresDialect = dialect{name: "postgres", blob: "BYTEA", dollarArgs: true}
	sqliteDialect   = dialect{name: "sqlite", blob: "BLOB"}
)

// rebind rewrites ? placeholders for drivers that want $1, $2, ...
func (d dialect) rebind(q string) string {
	if !d.dollarArgs {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements Store over database/sql. Timestamps are stored as
// unix milliseconds and structured values as JSON text so the same
// statements run on both backends.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.rebind(q), args...)
}

func (s *sqlStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.d.rebind(q), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.d.rebind(q), args...)
}

func (s *sqlStore) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS solve_jobs (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			status TEXT NOT NULL,
			strategy TEXT,
			solver_status TEXT,
			error TEXT,
			error_detail TEXT,
			num_nodes INTEGER NOT NULL,
			num_vehicles INTEGER NOT NULL,
			matrix_set_id TEXT,
			callback_url TEXT,
			result TEXT,
			created_at BIGINT NOT NULL,
			started_at BIGINT,
			finished_at BIGINT,
			elapsed_ms BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS solve_jobs_tenant_status ON solve_jobs (tenant_id, status)`,
		`CREATE TABLE IF NOT EXISTS matrix_sets (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			costs TEXT NOT NULL,
			durations TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS search_metrics (
			tenant_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			strategy TEXT NOT NULL,
			metrics TEXT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (job_id, strategy)
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			job_id TEXT,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT,
			payload ` + s.d.blob + ` NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			next_attempt_at BIGINT NOT NULL,
			last_error TEXT,
			response_code INTEGER,
			latency_ms INTEGER,
			delivered_at BIGINT,
			dedup_key TEXT NOT NULL,
			UNIQUE (tenant_id, event_type, url, dedup_key)
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_dlq (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			delivery_id TEXT NOT NULL,
			job_id TEXT,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			last_error TEXT,
			response_code INTEGER,
			latency_ms INTEGER,
			created_at BIGINT NOT NULL
		)`,
	}
}

// Migrate creates the tables if they do not exist yet.
func (s *sqlStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.d.name, err)
		}
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqlStore) Close() error                   { return s.db.Close() }

// Solve jobs

func (s *sqlStore) CreateJob(ctx context.Context, job model.Job) error {
	result, err := toJSON(job.Result)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO solve_jobs (id, tenant_id, status, strategy, solver_status, error, error_detail,
		num_nodes, num_vehicles, matrix_set_id, callback_url, result, created_at, started_at, finished_at, elapsed_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		job.ID, job.TenantID, string(job.Status), nullIfEmpty(job.Strategy), nullIfEmpty(job.SolverStatus),
		nullIfEmpty(job.Error), nullIfEmpty(job.ErrorDetail), job.NumNodes, job.NumVehicles,
		nullIfEmpty(job.MatrixSetID), nullIfEmpty(job.CallbackURL), result,
		job.CreatedAt.UnixMilli(), millisOrNil(job.StartedAt), millisOrNil(job.FinishedAt), job.ElapsedMs)
	return err
}

func (s *sqlStore) UpdateJob(ctx context.Context, job model.Job) error {
	result, err := toJSON(job.Result)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `UPDATE solve_jobs SET status=?, strategy=?, solver_status=?, error=?, error_detail=?,
		result=?, started_at=?, finished_at=?, elapsed_ms=? WHERE tenant_id=? AND id=?`,
		string(job.Status), nullIfEmpty(job.Strategy), nullIfEmpty(job.SolverStatus), nullIfEmpty(job.Error),
		nullIfEmpty(job.ErrorDetail), result, millisOrNil(job.StartedAt), millisOrNil(job.FinishedAt), job.ElapsedMs,
		job.TenantID, job.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const jobColumns = `id, tenant_id, status, COALESCE(strategy,''), COALESCE(solver_status,''), COALESCE(error,''),
	COALESCE(error_detail,''), num_nodes, num_vehicles, COALESCE(matrix_set_id,''), COALESCE(callback_url,''),
	result, created_at, started_at, finished_at, elapsed_ms`

type scanner interface{ Scan(dest ...any) error }

func scanJob(row scanner) (model.Job, error) {
	var (
		j                 model.Job
		status            string
		result            sql.NullString
		created           int64
		started, finished sql.NullInt64
	)
	err := row.Scan(&j.ID, &j.TenantID, &status, &j.Strategy, &j.SolverStatus, &j.Error, &j.ErrorDetail,
		&j.NumNodes, &j.NumVehicles, &j.MatrixSetID, &j.CallbackURL, &result, &created, &started, &finished, &j.ElapsedMs)
	if err != nil {
		return j, err
	}
	j.Status = model.JobStatus(status)
	j.CreatedAt = time.UnixMilli(created).UTC()
	j.StartedAt = timeOrNil(started)
	j.FinishedAt = timeOrNil(finished)
	if result.Valid && result.String != "" {
		var sol vrp.Solution
		if err := json.Unmarshal([]byte(result.String), &sol); err != nil {
			return j, fmt.Errorf("job %s result: %w", j.ID, err)
		}
		j.Result = &sol
	}
	return j, nil
}

func (s *sqlStore) GetJob(ctx context.Context, tenantID, id string) (model.Job, error) {
	j, err := scanJob(s.queryRow(ctx, `SELECT `+jobColumns+` FROM solve_jobs WHERE tenant_id=? AND id=?`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return j, ErrNotFound
	}
	return j, err
}

func (s *sqlStore) ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + jobColumns + ` FROM solve_jobs WHERE tenant_id=?`
	args := []any{tenantID}
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	if cursor != "" {
		q += ` AND id > ?`
		args = append(args, cursor)
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

// Matrix sets

func (s *sqlStore) SaveMatrixSet(ctx context.Context, set model.MatrixSet) error {
	costs, err := json.Marshal(set.Costs)
	if err != nil {
		return err
	}
	durations, err := json.Marshal(set.Durations)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO matrix_sets (id, tenant_id, costs, durations, created_at) VALUES (?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET costs=excluded.costs, durations=excluded.durations`,
		set.ID, set.TenantID, string(costs), string(durations), set.CreatedAt.UnixMilli())
	return err
}

func (s *sqlStore) GetMatrixSet(ctx context.Context, tenantID, id string) (model.MatrixSet, error) {
	set := model.MatrixSet{ID: id, TenantID: tenantID}
	var costs, durations string
	var created int64
	err := s.queryRow(ctx, `SELECT costs, durations, created_at FROM matrix_sets WHERE tenant_id=? AND id=?`, tenantID, id).
		Scan(&costs, &durations, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return set, ErrNotFound
	}
	if err != nil {
		return set, err
	}
	if err := json.Unmarshal([]byte(costs), &set.Costs); err != nil {
		return set, fmt.Errorf("matrix set %s costs: %w", id, err)
	}
	if err := json.Unmarshal([]byte(durations), &set.Durations); err != nil {
		return set, fmt.Errorf("matrix set %s durations: %w", id, err)
	}
	set.CreatedAt = time.UnixMilli(created).UTC()
	return set, nil
}

// Search metrics

func (s *sqlStore) SaveSearchMetrics(ctx context.Context, tenantID, jobID, strategy string, metrics map[string]any) error {
	b, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO search_metrics (tenant_id, job_id, strategy, metrics, updated_at) VALUES (?,?,?,?,?)
		ON CONFLICT (job_id, strategy) DO UPDATE SET metrics=excluded.metrics, updated_at=excluded.updated_at`,
		tenantID, jobID, strategy, string(b), time.Now().UnixMilli())
	return err
}

func (s *sqlStore) ListSearchMetrics(ctx context.Context, tenantID, jobID string) ([]map[string]any, error) {
	rows, err := s.query(ctx, `SELECT strategy, metrics FROM search_metrics WHERE tenant_id=? AND job_id=? ORDER BY strategy`, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var strategy, raw string
		if err := rows.Scan(&strategy, &raw); err != nil {
			return nil, err
		}
		item := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, err
		}
		item["tenantId"], item["jobId"], item["strategy"] = tenantID, jobID, strategy
		out = append(out, item)
	}
	return out, rows.Err()
}

// Webhook deliveries

func (s *sqlStore) EnqueueWebhook(ctx context.Context, tenantID, jobID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	res, err := s.exec(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, job_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES (?,?,?,?,?,?,?,'pending',0,?,?)
		ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`,
		id, tenantID, nullIfEmpty(jobID), eventType, url, nullIfEmpty(secret), payload, time.Now().UnixMilli(), dk)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = s.queryRow(ctx, `SELECT id FROM webhook_deliveries WHERE tenant_id=? AND event_type=? AND url=? AND dedup_key=?`,
			tenantID, eventType, url, dk).Scan(&id)
	}
	return id, err
}

func (s *sqlStore) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := s.query(ctx, `SELECT id, tenant_id, COALESCE(job_id,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`,
		time.Now().UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.JobID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqlStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := s.exec(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, delivered_at=?, response_code=?, latency_ms=? WHERE id=?`,
			time.Now().UnixMilli(), responseCode, latencyMs, id)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := s.exec(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=?, next_attempt_at=?, response_code=?, latency_ms=? WHERE id=?`,
		nullIfEmpty(lastError), next.UnixMilli(), responseCode, latencyMs, id)
	return err
}

// FailWebhookDelivery marks the delivery failed and copies it to the DLQ.
func (s *sqlStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, s.d.rebind(`UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=?, response_code=?, latency_ms=? WHERE id=?`),
		nullIfEmpty(lastError), responseCode, latencyMs, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = tx.ExecContext(ctx, s.d.rebind(`INSERT INTO webhook_dlq (id, tenant_id, delivery_id, job_id, event_type, url, attempts, last_error, response_code, latency_ms, created_at)
		SELECT ?, tenant_id, id, job_id, event_type, url, attempts, ?, CAST(? AS INTEGER), CAST(? AS INTEGER), CAST(? AS BIGINT) FROM webhook_deliveries WHERE id=?`),
		uuid.New().String(), nullIfEmpty(lastError), responseCode, latencyMs, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	limit = clampLimit(limit)
	q := `SELECT id, COALESCE(job_id,''), event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries WHERE tenant_id=?`
	args := []any{tenantID}
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	if cursor != "" {
		q += ` AND id > ?`
		args = append(args, cursor)
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, jobID, typ, st, lastErr, url string
		var attempts int
		var nextAt int64
		if err := rows.Scan(&id, &jobID, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil {
			return nil, "", err
		}
		m := map[string]any{"id": id, "jobId": jobID, "eventType": typ, "status": st, "attempts": attempts, "url": url,
			"nextAttemptAt": time.UnixMilli(nextAt).UTC()}
		if lastErr != "" {
			m["lastError"] = lastErr
		}
		out = append(out, m)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (s *sqlStore) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	res, err := s.exec(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=? WHERE tenant_id=? AND id=?`,
		time.Now().UnixMilli(), tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Dead-letter queue

func (s *sqlStore) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
	limit = clampLimit(limit)
	q := `SELECT id, delivery_id, COALESCE(job_id,''), event_type, url, COALESCE(last_error,''), attempts, created_at,
		COALESCE(response_code,0), COALESCE(latency_ms,0) FROM webhook_dlq WHERE tenant_id=?`
	args := []any{tenantID}
	if eventType != "" {
		q += ` AND event_type=?`
		args = append(args, eventType)
	}
	if cursor != "" {
		q += ` AND id > ?`
		args = append(args, cursor)
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, delID, jobID, et, url, errStr string
		var attempts, code, latency int
		var created int64
		if err := rows.Scan(&id, &delID, &jobID, &et, &url, &errStr, &attempts, &created, &code, &latency); err != nil {
			return nil, "", err
		}
		out = append(out, map[string]any{"id": id, "deliveryId": delID, "jobId": jobID, "eventType": et, "url": url,
			"lastError": errStr, "attempts": attempts, "createdAt": time.UnixMilli(created).UTC(),
			"responseCode": code, "latencyMs": latency})
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

// RequeueWebhookDLQ resets the original delivery to pending and drops the
// DLQ entry.
func (s *sqlStore) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var delID string
	err = tx.QueryRowContext(ctx, s.d.rebind(`SELECT delivery_id FROM webhook_dlq WHERE tenant_id=? AND id=?`), tenantID, id).Scan(&delID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.d.rebind(`UPDATE webhook_deliveries SET status='pending', attempts=0, next_attempt_at=? WHERE tenant_id=? AND id=?`),
		time.Now().UnixMilli(), tenantID, delID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM webhook_dlq WHERE tenant_id=? AND id=?`), tenantID, id); err != nil {
		return err
	}
	return tx.Commit()
}

// computeDedupKey uses the payload's JSON id when present, else a short
// content hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

// Helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toJSON(v *vrp.Solution) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func millisOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
