package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msnabiel/privacy-policy/internal/scraper"
)

func openTestStore(t *testing.T) *ResultStore {
	t.Helper()
	store, err := Open(context.Background(), ":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

// TestSaveAndReadResults verifies a run round-trips through the database in row order.
func TestSaveAndReadResults(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ts := time.Date(2024, 6, 1, 10, 0, 0, 123, time.UTC)
	results := []scraper.Result{
		{Company: "Example", Site: "example.com", PolicyURL: "https://example.com/privacy", Text: "policy text", Status: scraper.StatusSuccess, ScrapedAt: ts},
		{Company: "Other", Site: "other.test", Status: scraper.StatusPolicyNotFound, ScrapedAt: ts},
		{Company: "Broken", Site: "broken.test", Status: scraper.Status("error: boom"), ScrapedAt: ts},
	}

	require.NoError(t, store.SaveResults(context.Background(), "run-1", results))
	require.NoError(t, store.SaveResults(context.Background(), "run-2", results[:1]))

	got, err := store.Results(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, results, got)

	counts, err := store.CountByStatus(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"success": 1, "policy_not_found": 1, "error: boom": 1}, counts)
}

func TestSaveResultsIsIdempotentPerRun(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	results := []scraper.Result{{Company: "Example", Site: "example.com", Status: scraper.StatusPolicyNotFound, ScrapedAt: time.Unix(0, 0).UTC()}}
	require.NoError(t, store.SaveResults(context.Background(), "run-1", results))
	require.NoError(t, store.SaveResults(context.Background(), "run-1", results))

	got, err := store.Results(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSaveResultsManyRows(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	results := make([]scraper.Result, batchSize*2+7)
	for i := range results {
		results[i] = scraper.Result{Site: "site.example", Status: scraper.StatusPolicyNotFound, ScrapedAt: time.Unix(int64(i), 0).UTC()}
	}
	require.NoError(t, store.SaveResults(context.Background(), "bulk", results))

	counts, err := store.CountByStatus(context.Background(), "bulk")
	require.NoError(t, err)
	require.Equal(t, len(results), counts["policy_not_found"])
}

func TestOpenFileDatabase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.db")
	store, err := Open(context.Background(), path, "custom_results")
	require.NoError(t, err)
	require.NoError(t, store.SaveResults(context.Background(), "run", []scraper.Result{{Site: "a", Status: scraper.StatusSuccess, Text: "x", ScrapedAt: time.Unix(1, 0).UTC()}}))
	require.NoError(t, store.Close())

	reopened, err := Open(context.Background(), path, "custom_results")
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Results(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = Open(context.Background(), path, "bad name")
	require.Error(t, err)
}

func TestSaveResultsRequiresRunID(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	err := store.SaveResults(context.Background(), "", []scraper.Result{{Site: "a"}})
	require.Error(t, err)
}
