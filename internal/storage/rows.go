// Package storage holds the row mapping shared by the SQL result stores.
package storage

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/msnabiel/privacy-policy/internal/scraper"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "policy_results"

// Columns lists result columns in insert order.
var Columns = []string{
	"run_id",
	"row_num",
	"company",
	"site",
	"policy_url",
	"status",
	"text",
	"text_length",
	"content_hash",
	"scraped_at",
}

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableName returns the default for empty input and rejects names that are
// not plain identifiers.
func TableName(table string) (string, error) {
	if table == "" {
		return DefaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Row is one persisted result.
type Row struct {
	RunID       string
	RowNum      int
	Company     string
	Site        string
	PolicyURL   string
	Status      string
	Text        string
	TextLength  int
	ContentHash string
	ScrapedAt   time.Time
}

// Values returns the row in Columns order.
func (r Row) Values() []any {
	return []any{
		r.RunID,
		r.RowNum,
		r.Company,
		r.Site,
		r.PolicyURL,
		r.Status,
		r.Text,
		r.TextLength,
		r.ContentHash,
		r.ScrapedAt,
	}
}

// BuildRows maps results to rows numbered in slice order. Rows without text
// carry an empty content hash.
func BuildRows(runID string, results []scraper.Result, hasher scraper.Hasher) ([]Row, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	rows := make([]Row, 0, len(results))
	for i, r := range results {
		row := Row{
			RunID:      runID,
			RowNum:     i,
			Company:    r.Company,
			Site:       r.Site,
			PolicyURL:  r.PolicyURL,
			Status:     string(r.Status),
			Text:       r.Text,
			TextLength: r.TextLength(),
			ScrapedAt:  r.ScrapedAt.UTC(),
		}
		if r.Text != "" && hasher != nil {
			hash, err := hasher.Hash([]byte(r.Text))
			if err != nil {
				return nil, fmt.Errorf("hash text for %s: %w", r.Site, err)
			}
			row.ContentHash = hash
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Chunk splits rows into slices of at most size rows.
func Chunk(rows []Row, size int) [][]Row {
	if size <= 0 {
		size = len(rows)
	}
	var chunks [][]Row
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
