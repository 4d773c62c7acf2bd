package usage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLSink persists usage records to SQLite or Postgres, for operators who
// want durable, queryable billing reconciliation data.
type SQLSink struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteSink opens (creating if necessary) a SQLite-backed usage table.
func NewSQLiteSink(dsn string) (*SQLSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "inference-gateway-usage.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite usage sink: %w", err)
	}
	s := &SQLSink{db: db, dialect: "sqlite"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSink opens a Postgres-backed usage table.
func NewPostgresSink(dsn string) (*SQLSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres usage sink: %w", err)
	}
	s := &SQLSink{db: db, dialect: "postgres"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLSink) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s usage sink: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	tenant_id TEXT,
	canonical_model TEXT,
	provider_key TEXT,
	upstream_model TEXT,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	status_code INTEGER NOT NULL,
	error_message TEXT,
	latency_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);`
	if s.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS usage_records (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	tenant_id TEXT,
	canonical_model TEXT,
	provider_key TEXT,
	upstream_model TEXT,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	cost_usd DOUBLE PRECISION NOT NULL,
	status_code INTEGER NOT NULL,
	error_message TEXT,
	latency_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`
	}
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize usage schema: %w", err)
	}
	return nil
}

func (s *SQLSink) bind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(fmt.Sprintf("$%d", n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Record inserts r as a new row.
func (s *SQLSink) Record(ctx context.Context, r Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	q := s.bind(`INSERT INTO usage_records(
		trace_id, tenant_id, canonical_model, provider_key, upstream_model,
		prompt_tokens, completion_tokens, total_tokens, cost_usd,
		status_code, error_message, latency_ms, created_at
	) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, q,
		r.TraceID, r.TenantID, r.CanonicalModel, r.ProviderKey, r.UpstreamModel,
		r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.CostUSD,
		r.StatusCode, r.ErrorMessage, r.LatencyMS, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write usage record: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
