// Package postgres persists run results in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/msnabiel/privacy-policy/internal/hash/sha256"
	"github.com/msnabiel/privacy-policy/internal/scraper"
	"github.com/msnabiel/privacy-policy/internal/storage"
)

const defaultBatchSize = 500

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// BatchSize caps rows per INSERT statement.
	BatchSize int
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ResultStore writes result rows into Postgres.
type ResultStore struct {
	pool      pool
	table     string
	batchSize int
	hasher    scraper.Hasher
	builder   sq.StatementBuilderType
}

// New creates a Postgres-backed ResultStore using the provided config.
func New(ctx context.Context, cfg Config) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("results.postgres.dsn is required")
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
	store, err := NewWithPool(p, cfg.Table, cfg.BatchSize, nil)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool. A nil hasher uses
// SHA-256.
func NewWithPool(p pool, table string, batchSize int, hasher scraper.Hasher) (*ResultStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	table, err := storage.TableName(table)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if hasher == nil {
		hasher = sha256.New()
	}
	return &ResultStore{
		pool:      p,
		table:     table,
		batchSize: batchSize,
		hasher:    hasher,
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// EnsureSchema creates the results table when missing.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id       TEXT        NOT NULL,
	row_num      INTEGER     NOT NULL,
	company      TEXT        NOT NULL,
	site         TEXT        NOT NULL,
	policy_url   TEXT        NOT NULL,
	status       TEXT        NOT NULL,
	text         TEXT        NOT NULL,
	text_length  INTEGER     NOT NULL,
	content_hash TEXT        NOT NULL,
	scraped_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, row_num)
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// SaveResults inserts every result of a run in one transaction. Re-saving
// the same run leaves existing rows untouched.
func (s *ResultStore) SaveResults(ctx context.Context, runID string, results []scraper.Result) error {
	if len(results) == 0 {
		return nil
	}
	rows, err := storage.BuildRows(runID, results, s.hasher)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin results tx: %w", err)
	}
	for _, chunk := range storage.Chunk(rows, s.batchSize) {
		query, args, err := s.insert(chunk)
		if err != nil {
			return errors.Join(err, tx.Rollback(ctx))
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return errors.Join(fmt.Errorf("insert results: %w", err), tx.Rollback(ctx))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}

func (s *ResultStore) insert(rows []storage.Row) (string, []any, error) {
	builder := s.builder.Insert(s.table).Columns(storage.Columns...)
	for _, row := range rows {
		builder = builder.Values(row.Values()...)
	}
	query, args, err := builder.Suffix("ON CONFLICT (run_id, row_num) DO NOTHING").ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, args, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
