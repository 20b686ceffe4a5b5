package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/msnabiel/privacy-policy/internal/scraper"
)

// StoreSink persists every result row to a ResultStore.
type StoreSink struct {
	store scraper.ResultStore
}

// NewStoreSink wraps store as a ResultSink.
func NewStoreSink(store scraper.ResultStore) (*StoreSink, error) {
	if store == nil {
		return nil, errors.New("store sink requires a result store")
	}
	return &StoreSink{store: store}, nil
}

// Write saves the report's results under its run ID.
func (s *StoreSink) Write(ctx context.Context, report scraper.RunReport) error {
	if err := s.store.SaveResults(ctx, report.RunID, report.Results); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}
