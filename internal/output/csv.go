// Package output writes finished runs to their destinations: CSV artifacts,
// result stores, and run notifications.
package output

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/msnabiel/privacy-policy/internal/scraper"
)

// DefaultPrefix names the CSV artifacts when no prefix is configured.
const DefaultPrefix = "privacy_policies"

const (
	fileTimeLayout = "20060102_150405"
	rowTimeLayout  = "2006-01-02 15:04:05"
	csvContentType = "text/csv; charset=utf-8"
)

// FullHeader is the header row of the full results file.
var FullHeader = []string{
	"Company",
	"Website",
	"Privacy Policy URL",
	"Text",
	"Status",
	"Text Length",
	"Scrape Timestamp",
}

// SummaryHeader is the header row of the summary file.
var SummaryHeader = []string{"Company", "Website", "URL", "Status"}

// CSVConfig controls artifact naming.
type CSVConfig struct {
	Prefix string
	// Timestamp appends _YYYYMMDD_HHMMSS to both file names.
	Timestamp bool
}

// CSVSink writes the full and summary CSV files through a BlobStore.
type CSVSink struct {
	store  scraper.BlobStore
	cfg    CSVConfig
	logger *zap.Logger
}

// NewCSVSink builds a CSVSink.
func NewCSVSink(store scraper.BlobStore, cfg CSVConfig, logger *zap.Logger) (*CSVSink, error) {
	if store == nil {
		return nil, errors.New("csv sink requires a blob store")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSink{store: store, cfg: cfg, logger: logger.Named("csv_sink")}, nil
}

// FileNames returns the full and summary object names for a run finished at t.
func (s *CSVSink) FileNames(t time.Time) (string, string) {
	if !s.cfg.Timestamp {
		return s.cfg.Prefix + ".csv", s.cfg.Prefix + "_summary.csv"
	}
	stamp := t.Format(fileTimeLayout)
	return fmt.Sprintf("%s_%s.csv", s.cfg.Prefix, stamp),
		fmt.Sprintf("%s_summary_%s.csv", s.cfg.Prefix, stamp)
}

// Write renders both files and stores them.
func (s *CSVSink) Write(ctx context.Context, report scraper.RunReport) error {
	stamp := report.FinishedAt
	if stamp.IsZero() {
		stamp = report.StartedAt
	}
	fullName, summaryName := s.FileNames(stamp)

	full, err := encodeCSV(FullHeader, report.Results, fullRecord)
	if err != nil {
		return fmt.Errorf("encode results csv: %w", err)
	}
	summary, err := encodeCSV(SummaryHeader, report.Results, summaryRecord)
	if err != nil {
		return fmt.Errorf("encode summary csv: %w", err)
	}

	uri, err := s.store.PutObject(ctx, fullName, csvContentType, bytes.NewReader(full))
	if err != nil {
		return fmt.Errorf("store %s: %w", fullName, err)
	}
	s.logger.Info("results saved", zap.String("uri", uri), zap.Int("rows", len(report.Results)))

	uri, err = s.store.PutObject(ctx, summaryName, csvContentType, bytes.NewReader(summary))
	if err != nil {
		return fmt.Errorf("store %s: %w", summaryName, err)
	}
	s.logger.Info("summary saved", zap.String("uri", uri))
	return nil
}

func fullRecord(r scraper.Result) []string {
	ts := ""
	if !r.ScrapedAt.IsZero() {
		ts = r.ScrapedAt.Format(rowTimeLayout)
	}
	return []string{
		r.Company,
		r.Site,
		r.PolicyURL,
		r.Text,
		string(r.Status),
		strconv.Itoa(r.TextLength()),
		ts,
	}
}

func summaryRecord(r scraper.Result) []string {
	return []string{r.Company, r.Site, r.PolicyURL, string(r.Status)}
}

func encodeCSV(header []string, results []scraper.Result, record func(scraper.Result) []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range results {
		if err := w.Write(record(r)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
