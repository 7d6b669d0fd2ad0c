// Package tracedb stores supervision runs and their traces in a SQL
// database. sqlite3, mysql and postgres are supported.
package tracedb

import (
	"conduit/internal/process"
	"conduit/internal/trace"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const DefaultDriver = "sqlite3"

var ErrRunNotFound = errors.New("run not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id VARCHAR(36) PRIMARY KEY,
		status VARCHAR(32) NOT NULL,
		attempts INTEGER NOT NULL,
		final_value TEXT,
		duration_ms DOUBLE PRECISION NOT NULL,
		last_error TEXT,
		created_at VARCHAR(40) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trace_entries (
		run_id VARCHAR(36) NOT NULL,
		task_id BIGINT NOT NULL,
		source TEXT NOT NULL,
		value_type VARCHAR(16) NOT NULL,
		status VARCHAR(8) NOT NULL,
		value TEXT,
		ts VARCHAR(40) NOT NULL,
		duration_ms DOUBLE PRECISION NOT NULL,
		annotations TEXT,
		PRIMARY KEY (run_id, task_id)
	)`,
}

// Store wraps a connection pool. All methods are safe for concurrent use.
type Store struct {
	DB     *sql.DB
	driver string
	now    func() time.Time
}

type Run struct {
	RunID      uuid.UUID
	Status     process.Status
	Attempts   int
	FinalValue string
	Duration   time.Duration
	LastError  string
	CreatedAt  time.Time
	Entries    []Entry
}

type Entry struct {
	TaskID      uint64
	Source      string
	Type        string
	Status      string
	Value       string
	Timestamp   time.Time
	Duration    time.Duration
	Annotations map[string]string
}

// Open connects with the named driver and creates the schema if needed.
// An empty driver means sqlite3.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	}
	s := &Store{DB: db, driver: driver, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// SaveRun writes a run and its trace in one transaction.
func (s *Store) SaveRun(ctx context.Context, res process.SupervisionResult) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	var lastErr string
	if res.LastError != nil {
		lastErr = res.LastError.Error()
	}
	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO runs (run_id, status, attempts, final_value, duration_ms, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		res.RunID.String(), string(res.Status), res.Attempts, res.FinalValue.Literal(),
		millis(res.Duration), lastErr, formatTime(s.now()),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}

	insertEntry := s.rebind(
		`INSERT INTO trace_entries (run_id, task_id, source, value_type, status, value, ts, duration_ms, annotations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, e := range res.Trace {
		annotations, err := encodeAnnotations(e)
		if err != nil {
			tx.Rollback()
			return err
		}
		_, err = tx.ExecContext(ctx, insertEntry,
			res.RunID.String(), int64(e.TaskID), e.Source, string(e.Value.Type()), e.Status(),
			e.Value.Literal(), formatTime(e.Timestamp), millis(e.Duration), annotations,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trace entry %d: %w", e.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Debug("run saved",
		slog.String("run_id", res.RunID.String()),
		slog.Int("entries", len(res.Trace)),
	)
	return nil
}

// LoadRun reads a run back with its trace ordered by task ID.
func (s *Store) LoadRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := s.DB.QueryRowContext(ctx, s.rebind(
		`SELECT run_id, status, attempts, final_value, duration_ms, last_error, created_at
		 FROM runs WHERE run_id = ?`), id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}

	rows, err := s.DB.QueryContext(ctx, s.rebind(
		`SELECT task_id, source, value_type, status, value, ts, duration_ms, annotations
		 FROM trace_entries WHERE run_id = ? ORDER BY task_id`), id.String())
	if err != nil {
		return Run{}, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e           Entry
			taskID      int64
			value       sql.NullString
			ts          string
			durationMs  float64
			annotations sql.NullString
		)
		if err := rows.Scan(&taskID, &e.Source, &e.Type, &e.Status, &value, &ts, &durationMs, &annotations); err != nil {
			return Run{}, fmt.Errorf("scan trace entry: %w", err)
		}
		e.TaskID = uint64(taskID)
		e.Value = value.String
		e.Duration = fromMillis(durationMs)
		if e.Timestamp, err = parseTime(ts); err != nil {
			return Run{}, err
		}
		if annotations.String != "" {
			if err := json.Unmarshal([]byte(annotations.String), &e.Annotations); err != nil {
				return Run{}, fmt.Errorf("decode annotations: %w", err)
			}
		}
		run.Entries = append(run.Entries, e)
	}
	return run, rows.Err()
}

// ListRuns returns up to limit runs, newest first, without their traces.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.DB.QueryContext(ctx, s.rebind(
		`SELECT run_id, status, attempts, final_value, duration_ms, last_error, created_at
		 FROM runs ORDER BY created_at DESC, run_id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run        Run
		id, status string
		finalValue sql.NullString
		durationMs float64
		lastErr    sql.NullString
		createdAt  string
	)
	if err := sc.Scan(&id, &status, &run.Attempts, &finalValue, &durationMs, &lastErr, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	var err error
	if run.RunID, err = uuid.Parse(id); err != nil {
		return Run{}, fmt.Errorf("bad run id %q: %w", id, err)
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return Run{}, err
	}
	run.Status = process.Status(status)
	run.FinalValue = finalValue.String
	run.Duration = fromMillis(durationMs)
	run.LastError = lastErr.String
	return run, nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func encodeAnnotations(e trace.Entry) (string, error) {
	r, ok := e.Value.AsResult()
	if !ok || len(r.Meta.Annotations) == 0 {
		return "", nil
	}
	b, err := json.Marshal(r.Meta.Annotations)
	if err != nil {
		return "", fmt.Errorf("encode annotations: %w", err)
	}
	return string(b), nil
}

// timeLayout is fixed width, so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
