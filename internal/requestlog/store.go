// Package requestlog persists one row per translate request so operators can
// audit cache efficiency and upstream failures after the fact. SQLite and
// Postgres are supported; NoopWriter is used when no store is configured.
package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Entry is the outcome of one translate request.
type Entry struct {
	TraceID      string
	CacheKey     string
	Section      string
	Office       string
	TextLength   int
	Cached       bool
	Status       int
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMS    int64
	ErrorMessage string
	CreatedAt    time.Time
}

// Query filters List results. Status 0 matches every status.
type Query struct {
	Limit  int
	Offset int
	Status int
}

// ListResult is a page of entries plus the total matching count.
type ListResult struct {
	Data  []Entry
	Total int
}

// Writer persists request log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLWriter persists entries to SQLite/Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// Open returns the writer for driver. An empty driver yields NoopWriter and a
// nil closer.
func Open(driver, dsn string) (Writer, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "":
		return NoopWriter{}, func() error { return nil }, nil
	case DriverSQLite:
		w, err := NewSQLiteWriter(dsn)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	case DriverPostgres:
		w, err := NewPostgresWriter(dsn)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown request log driver %q", driver)
	}
}

func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "afd-translations.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite request log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: DriverSQLite}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres request log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: DriverPostgres}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s request log writer: %w", w.dialect, err)
	}

	idCol, tsType := "id INTEGER PRIMARY KEY", "TIMESTAMP"
	if w.dialect == DriverPostgres {
		idCol, tsType = "id BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	}
	ddl := `
CREATE TABLE IF NOT EXISTS translation_requests (
	` + idCol + `,
	trace_id TEXT,
	cache_key TEXT,
	section TEXT,
	office TEXT,
	text_length INTEGER NOT NULL,
	cached BOOLEAN NOT NULL,
	status INTEGER NOT NULL,
	provider TEXT,
	model TEXT,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	latency_ms BIGINT NOT NULL,
	error_message TEXT,
	created_at ` + tsType + ` NOT NULL
);`

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize request log schema: %w", err)
	}
	return nil
}

// placeholders returns n bind markers starting at index start (1-based).
func (w *SQLWriter) placeholders(start, n int) []string {
	out := make([]string, n)
	for i := range out {
		if w.dialect == DriverPostgres {
			out[i] = fmt.Sprintf("$%d", start+i)
		} else {
			out[i] = "?"
		}
	}
	return out
}

func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO translation_requests(trace_id, cache_key, section, office, text_length, cached, status, provider, model, input_tokens, output_tokens, latency_ms, error_message, created_at)
	VALUES(` + strings.Join(w.placeholders(1, 14), ", ") + `)`

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.CacheKey,
		entry.Section,
		entry.Office,
		entry.TextLength,
		entry.Cached,
		entry.Status,
		entry.Provider,
		entry.Model,
		entry.InputTokens,
		entry.OutputTokens,
		entry.LatencyMS,
		entry.ErrorMessage,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write request log: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (w *SQLWriter) List(ctx context.Context, q Query) (*ListResult, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	where := ""
	var args []interface{}
	if q.Status != 0 {
		where = " WHERE status = " + w.placeholders(1, 1)[0]
		args = append(args, q.Status)
	}

	var total int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM translation_requests"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count request logs: %w", err)
	}

	page := w.placeholders(len(args)+1, 2)
	query := `SELECT trace_id, cache_key, section, office, text_length, cached, status, provider, model, input_tokens, output_tokens, latency_ms, error_message, created_at
	FROM translation_requests` + where + ` ORDER BY created_at DESC, id DESC LIMIT ` + page[0] + ` OFFSET ` + page[1]
	rows, err := w.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list request logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := &ListResult{Total: total}
	for rows.Next() {
		var e Entry
		var traceID, cacheKey, section, office, provider, model, errMsg sql.NullString
		if err := rows.Scan(&traceID, &cacheKey, &section, &office, &e.TextLength, &e.Cached, &e.Status,
			&provider, &model, &e.InputTokens, &e.OutputTokens, &e.LatencyMS, &errMsg, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		e.TraceID, e.CacheKey, e.Section, e.Office = traceID.String, cacheKey.String, section.String, office.String
		e.Provider, e.Model, e.ErrorMessage = provider.String, model.String, errMsg.String
		result.Data = append(result.Data, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request logs: %w", err)
	}
	return result, nil
}

func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
