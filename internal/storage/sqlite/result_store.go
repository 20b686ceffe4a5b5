// Package sqlite persists run results in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/msnabiel/privacy-policy/internal/hash/sha256"
	"github.com/msnabiel/privacy-policy/internal/scraper"
	"github.com/msnabiel/privacy-policy/internal/storage"
)

// SQLite caps bound parameters per statement; 10 columns x 100 rows stays
// well below it.
const batchSize = 100

// ResultStore writes result rows into SQLite.
type ResultStore struct {
	db     *sql.DB
	table  string
	hasher scraper.Hasher
}

// Open opens (or creates) the database at path and ensures the results
// table exists. Use ":memory:" for an in-memory database.
func Open(ctx context.Context, path, table string) (*ResultStore, error) {
	table, err := storage.TableName(table)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps a :memory: database on one connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return nil, errors.Join(fmt.Errorf("%s: %w", pragma, err), db.Close())
		}
	}

	s := &ResultStore{db: db, table: table, hasher: sha256.New()}
	if err := s.createSchema(ctx); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return s, nil
}

func (s *ResultStore) createSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			run_id TEXT NOT NULL,
			row_num INTEGER NOT NULL,
			company TEXT NOT NULL,
			site TEXT NOT NULL,
			policy_url TEXT NOT NULL,
			status TEXT NOT NULL,
			text TEXT NOT NULL,
			text_length INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			scraped_at TEXT NOT NULL,
			PRIMARY KEY (run_id, row_num)
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_site ON %[1]s(site);
	`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveResults inserts every result of a run in one transaction.
func (s *ResultStore) SaveResults(ctx context.Context, runID string, results []scraper.Result) error {
	if len(results) == 0 {
		return nil
	}
	rows, err := storage.BuildRows(runID, results, s.hasher)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin results tx: %w", err)
	}
	for _, chunk := range storage.Chunk(rows, batchSize) {
		builder := sq.Insert(s.table).Columns(storage.Columns...).Suffix("ON CONFLICT (run_id, row_num) DO NOTHING")
		for _, row := range chunk {
			values := row.Values()
			// Timestamps are stored as RFC 3339 text.
			values[len(values)-1] = row.ScrapedAt.Format(time.RFC3339Nano)
			builder = builder.Values(values...)
		}
		query, args, err := builder.ToSql()
		if err != nil {
			return errors.Join(fmt.Errorf("build insert: %w", err), tx.Rollback())
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Join(fmt.Errorf("insert results: %w", err), tx.Rollback())
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}

// Results returns the stored results of a run in row order.
func (s *ResultStore) Results(ctx context.Context, runID string) ([]scraper.Result, error) {
	query, args, err := sq.Select("company", "site", "policy_url", "status", "text", "scraped_at").
		From(s.table).
		Where(sq.Eq{"run_id": runID}).
		OrderBy("row_num").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []scraper.Result
	for rows.Next() {
		var (
			r         scraper.Result
			status    string
			scrapedAt string
		)
		if err := rows.Scan(&r.Company, &r.Site, &r.PolicyURL, &status, &r.Text, &scrapedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = scraper.Status(status)
		if r.ScrapedAt, err = time.Parse(time.RFC3339Nano, scrapedAt); err != nil {
			return nil, fmt.Errorf("parse scraped_at %q: %w", scrapedAt, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// CountByStatus tallies stored rows of a run by status.
func (s *ResultStore) CountByStatus(ctx context.Context, runID string) (map[string]int, error) {
	query, args, err := sq.Select("status", "COUNT(*)").
		From(s.table).
		Where(sq.Eq{"run_id": runID}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count results: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// Close closes the database.
func (s *ResultStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
