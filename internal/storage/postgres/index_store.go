// Package postgres provides a Postgres-backed posting index.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "posting_index"

// Config controls the Postgres connection pool used for index rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// IndexStore keeps one identifier per row, keyed by a 1-based row number.
type IndexStore struct {
	pool  pool
	table string
}

// NewIndexStore connects to Postgres using cfg.
func NewIndexStore(ctx context.Context, cfg Config) (*IndexStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("index.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewIndexStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewIndexStoreWithPool constructs a store from an existing pool.
func NewIndexStoreWithPool(p pool, table string) (*IndexStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &IndexStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *IndexStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the index table when missing.
func (s *IndexStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	row_num    BIGINT PRIMARY KEY,
	identifier TEXT NOT NULL,
	written_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create index table: %w", err)
	}
	return nil
}

// LoadIdentifiers returns every identifier in row order.
func (s *IndexStore) LoadIdentifiers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT identifier FROM %s ORDER BY row_num`, s.table))
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}
	return ids, nil
}

// AppendIdentifiers writes ids to rows offset+1 onward. Rows already present at
// those numbers are overwritten so a repeated write lands in the same place.
func (s *IndexStore) AppendIdentifiers(ctx context.Context, offset int, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (row_num, identifier)
SELECT $1::bigint + u.ord, u.id
FROM unnest($2::text[]) WITH ORDINALITY AS u(id, ord)
ON CONFLICT (row_num) DO UPDATE
SET identifier = EXCLUDED.identifier, written_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, int64(offset), ids); err != nil {
		return fmt.Errorf("append index rows: %w", err)
	}
	return nil
}
