package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"notice_generator/internal/generator"
)

// Store wraps SQLite access for templates, generation batches and jobs.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS templates (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event_type TEXT NOT NULL,
            scenario_key TEXT NOT NULL,
            name TEXT,
            title_news TEXT,
            body_news_html TEXT,
            push_title TEXT,
            push_body TEXT,
            rules_json TEXT,
            is_active INTEGER NOT NULL DEFAULT 1,
            created_at TIMESTAMP,
            updated_at TIMESTAMP
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_pair ON templates(event_type, scenario_key);`,
		`CREATE TABLE IF NOT EXISTS batches (
            batch_id TEXT PRIMARY KEY,
            event_type TEXT,
            scenario_key TEXT,
            source TEXT,
            status TEXT,
            record_count INTEGER,
            error_count INTEGER,
            created_at TIMESTAMP,
            updated_at TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS records (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            batch_id TEXT,
            event_type TEXT,
            scenario_key TEXT,
            address TEXT,
            date_list TEXT,
            time_range TEXT,
            news_title TEXT,
            news_html TEXT,
            push_title TEXT,
            push_body TEXT,
            status TEXT,
            error_text TEXT,
            created_at TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_records_batch ON records(batch_id);`,
		`CREATE TABLE IF NOT EXISTS jobs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            batch_id TEXT,
            stage TEXT,
            status TEXT,
            params_json TEXT,
            idempotency_key TEXT,
            created_at TIMESTAMP,
            updated_at TIMESTAMP,
            started_at TIMESTAMP,
            finished_at TIMESTAMP
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idem ON jobs(idempotency_key);`,
		`CREATE TABLE IF NOT EXISTS job_logs (
            job_id INTEGER,
            line TEXT,
            created_at TIMESTAMP
        );`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Batch is one generation invocation persisted for history.
type Batch struct {
	BatchID     string    `json:"batch_id"`
	EventType   string    `json:"event_type"`
	ScenarioKey string    `json:"scenario_key"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	RecordCount int       `json:"record_count"`
	ErrorCount  int       `json:"error_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Job is one pipeline job persisted to DB.
type Job struct {
	ID             int64      `json:"id"`
	BatchID        string     `json:"batch_id"`
	Stage          string     `json:"stage"`
	Status         string     `json:"status"`
	ParamsJSON     string     `json:"params_json"`
	IdempotencyKey string     `json:"idempotency_key"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
}

// UpsertTemplate inserts or replaces the template for its
// (event_type, scenario_key) pair.
func (s *Store) UpsertTemplate(ctx context.Context, t generator.Template, ts time.Time) error {
	rules, _ := json.Marshal(t.Rules)
	_, err := s.db.ExecContext(ctx, `INSERT INTO templates(event_type, scenario_key, name, title_news, body_news_html, push_title, push_body, rules_json, is_active, created_at, updated_at)
        VALUES(?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(event_type, scenario_key) DO UPDATE SET
            name=excluded.name, title_news=excluded.title_news, body_news_html=excluded.body_news_html,
            push_title=excluded.push_title, push_body=excluded.push_body, rules_json=excluded.rules_json,
            is_active=excluded.is_active, updated_at=excluded.updated_at`,
		string(t.EventType), t.ScenarioKey, t.Name, t.TitleNews, t.BodyNewsHTML, t.PushTitle, t.PushBody, string(rules), boolToInt(t.IsActive), ts, ts)
	return err
}

// ActiveTemplates returns the template snapshot the engine renders against.
func (s *Store) ActiveTemplates(ctx context.Context) ([]generator.Template, error) {
	return s.listTemplates(ctx, `SELECT event_type, scenario_key, name, title_news, body_news_html, push_title, push_body, rules_json, is_active FROM templates WHERE is_active=1 ORDER BY event_type, scenario_key`)
}

// ListTemplates returns all templates, active or not, for the admin surface.
func (s *Store) ListTemplates(ctx context.Context) ([]generator.Template, error) {
	return s.listTemplates(ctx, `SELECT event_type, scenario_key, name, title_news, body_news_html, push_title, push_body, rules_json, is_active FROM templates ORDER BY event_type, scenario_key`)
}

func (s *Store) listTemplates(ctx context.Context, query string) ([]generator.Template, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []generator.Template
	for rows.Next() {
		var t generator.Template
		var eventType string
		var rulesJSON sql.NullString
		var active int
		if err := rows.Scan(&eventType, &t.ScenarioKey, &t.Name, &t.TitleNews, &t.BodyNewsHTML, &t.PushTitle, &t.PushBody, &rulesJSON, &active); err != nil {
			return nil, err
		}
		t.EventType = generator.EventType(eventType)
		t.IsActive = active != 0
		if rulesJSON.Valid && rulesJSON.String != "" {
			_ = json.Unmarshal([]byte(rulesJSON.String), &t.Rules)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertBatch records or updates a generation batch.
func (s *Store) UpsertBatch(ctx context.Context, b Batch) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO batches(batch_id, event_type, scenario_key, source, status, record_count, error_count, created_at, updated_at)
        VALUES(?,?,?,?,?,?,?,?,?)
        ON CONFLICT(batch_id) DO UPDATE SET status=excluded.status, record_count=excluded.record_count, error_count=excluded.error_count, updated_at=excluded.updated_at`,
		b.BatchID, b.EventType, b.ScenarioKey, b.Source, b.Status, b.RecordCount, b.ErrorCount, b.CreatedAt, b.UpdatedAt)
	return err
}

func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT batch_id, event_type, scenario_key, source, status, record_count, error_count, created_at, updated_at FROM batches ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.BatchID, &b.EventType, &b.ScenarioKey, &b.Source, &b.Status, &b.RecordCount, &b.ErrorCount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ReplaceRecords swaps the stored records of a batch for a fresh generation.
func (s *Store) ReplaceRecords(ctx context.Context, batchID string, recs []generator.Record, ts time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE batch_id=?`, batchID); err != nil {
		return err
	}
	for _, r := range recs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO records(batch_id, event_type, scenario_key, address, date_list, time_range, news_title, news_html, push_title, push_body, status, error_text, created_at)
            VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			batchID, string(r.EventType), r.ScenarioKey, r.Address, r.DateListHuman, r.TimeRangeHuman,
			r.NewsTitle, r.NewsHTML, r.PushTitle, r.PushBody, r.Status, r.ErrorText, ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RecordsByBatch(ctx context.Context, batchID string) ([]generator.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_type, scenario_key, address, date_list, time_range, news_title, news_html, push_title, push_body, status, error_text FROM records WHERE batch_id=? ORDER BY id ASC`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []generator.Record
	for rows.Next() {
		var r generator.Record
		var eventType string
		if err := rows.Scan(&eventType, &r.ScenarioKey, &r.Address, &r.DateListHuman, &r.TimeRangeHuman, &r.NewsTitle, &r.NewsHTML, &r.PushTitle, &r.PushBody, &r.Status, &r.ErrorText); err != nil {
			return nil, err
		}
		r.EventType = generator.EventType(eventType)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) RecordJob(ctx context.Context, j *Job) (*Job, error) {
	if j.ParamsJSON == "" {
		j.ParamsJSON = "{}"
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO jobs(batch_id, stage, status, params_json, idempotency_key, created_at, updated_at) VALUES(?,?,?,?,?,?,?)`,
		j.BatchID, j.Stage, j.Status, j.ParamsJSON, j.IdempotencyKey, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	j.ID = id
	return j, nil
}

// FetchJobByIdempotency returns the existing job for a key, if any.
func (s *Store) FetchJobByIdempotency(ctx context.Context, key string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, batch_id, stage, status, params_json, idempotency_key, created_at, updated_at, started_at, finished_at FROM jobs WHERE idempotency_key=?`, key)
	var j Job
	var started, finished sql.NullTime
	switch err := row.Scan(&j.ID, &j.BatchID, &j.Stage, &j.Status, &j.ParamsJSON, &j.IdempotencyKey, &j.CreatedAt, &j.UpdatedAt, &started, &finished); err {
	case nil:
		if started.Valid {
			j.StartedAt = &started.Time
		}
		if finished.Valid {
			j.FinishedAt = &finished.Time
		}
		return &j, nil
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, err
	}
}

func (s *Store) MarkJobStarted(ctx context.Context, id int64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status=?, started_at=?, updated_at=? WHERE id=?`, "running", ts, ts, id)
	return err
}

func (s *Store) MarkJobFinished(ctx context.Context, id int64, status string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status=?, finished_at=?, updated_at=? WHERE id=?`, status, ts, ts, id)
	return err
}

func (s *Store) AppendJobLog(ctx context.Context, id int64, line string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO job_logs(job_id, line, created_at) VALUES(?,?,?)`, id, line, ts)
	return err
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, batch_id, stage, status, params_json, idempotency_key, created_at, updated_at, started_at, finished_at FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		var j Job
		var started, finished sql.NullTime
		if err := rows.Scan(&j.ID, &j.BatchID, &j.Stage, &j.Status, &j.ParamsJSON, &j.IdempotencyKey, &j.CreatedAt, &j.UpdatedAt, &started, &finished); err != nil {
			return nil, err
		}
		if started.Valid {
			j.StartedAt = &started.Time
		}
		if finished.Valid {
			j.FinishedAt = &finished.Time
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) JobLogs(ctx context.Context, jobID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT line FROM job_logs WHERE job_id=? ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

var ErrConflict = errors.New("idempotent job already exists")

// InsertJobIdempotent records a job unless its idempotency key is taken.
func (s *Store) InsertJobIdempotent(ctx context.Context, j *Job) (*Job, error) {
	existing, err := s.FetchJobByIdempotency(ctx, j.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrConflict
	}
	return s.RecordJob(ctx, j)
}

// Health returns an error if the DB is not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
