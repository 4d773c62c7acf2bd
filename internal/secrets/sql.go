package secrets

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQLProvider resolves secrets from a SQL table, for operators who keep
// provider credentials in the same database as the rest of their
// infrastructure rather than in environment variables or a secret manager.
type SQLProvider struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteProvider opens (creating if necessary) a SQLite-backed secret
// table at dsn.
func NewSQLiteProvider(dsn string) (*SQLProvider, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "inference-gateway-secrets.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite secret store: %w", err)
	}
	p := &SQLProvider{db: db, dialect: dialectSQLite}
	if err := p.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresProvider opens a Postgres-backed secret table at dsn.
func NewPostgresProvider(dsn string) (*SQLProvider, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres secret store: %w", err)
	}
	p := &SQLProvider{db: db, dialect: dialectPostgres}
	if err := p.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *SQLProvider) init() error {
	if err := p.db.Ping(); err != nil {
		return fmt.Errorf("ping %s secret store: %w", p.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS provider_secrets (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);`
	if p.dialect == dialectPostgres {
		ddl = `
CREATE TABLE IF NOT EXISTS provider_secrets (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`
	}
	if _, err := p.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize secret store schema: %w", err)
	}
	return nil
}

func (p *SQLProvider) bind(query string) string {
	if p.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	argNum := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Get reads the secret value for key. Returns ErrNotFound if no row exists.
func (p *SQLProvider) Get(ctx context.Context, key string) (string, error) {
	q := p.bind(`SELECT value FROM provider_secrets WHERE key = ?`)
	var value string
	err := p.db.QueryRowContext(ctx, q, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: key %q", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("read secret %q: %w", key, err)
	}
	if value == "" {
		return "", fmt.Errorf("secrets: stored value for %q is empty", key)
	}
	return value, nil
}

// Put upserts a secret value, for use by an operator CLI rather than the
// request path.
func (p *SQLProvider) Put(ctx context.Context, key, value string) error {
	if value == "" {
		return fmt.Errorf("secrets: refusing to store empty value for %q", key)
	}
	now := time.Now().UTC()
	var q string
	switch p.dialect {
	case dialectPostgres:
		q = p.bind(`INSERT INTO provider_secrets(key, value, updated_at) VALUES(?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`)
	default:
		q = p.bind(`INSERT INTO provider_secrets(key, value, updated_at) VALUES(?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	}
	if _, err := p.db.ExecContext(ctx, q, key, value, now); err != nil {
		return fmt.Errorf("store secret %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (p *SQLProvider) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
