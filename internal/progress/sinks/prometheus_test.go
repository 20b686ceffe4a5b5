package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/msnabiel/privacy-policy/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are updated from site events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageSiteStart, Site: "example.com"},
		{RunID: runID, TS: now, Stage: progress.StageSiteStart, Site: "example.org"},
		{RunID: runID, TS: now, Stage: progress.StageSiteResolved, Site: "example.com", URL: "https://example.com/privacy"},
		{
			RunID:   runID,
			TS:      now.Add(2 * time.Second),
			Stage:   progress.StageSiteDone,
			Site:    "example.com",
			Outcome: "success",
			Chars:   512,
			Dur:     2 * time.Second,
		},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sitesInFlight))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sitesResolved))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sitesCompleted.WithLabelValues("success")))
	require.InDelta(t, 512.0, testutil.ToFloat64(sink.extractedChars), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.siteDuration, "policy_site_duration_seconds"))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageSiteDone, Site: "example.org", Outcome: "policy_not_found"},
		{RunID: runID, TS: now, Stage: progress.StageSiteDone, Site: "example.org", Outcome: "policy_not_found"},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Dur: time.Minute},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sitesInFlight))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.sitesCompleted.WithLabelValues("policy_not_found")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted))
}

func TestNewPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkWritesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	id := uuid.New()

	err := sink.Consume(context.Background(), []progress.Event{{
		RunID:   progress.UUIDToBytes(id),
		TS:      time.Now(),
		Stage:   progress.StageSiteDone,
		Site:    "example.com",
		Outcome: "success",
		Chars:   120,
	}})
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, id.String(), fields["run_id"])
	require.Equal(t, "example.com", fields["site"])
	require.Equal(t, "success", fields["outcome"])
	require.EqualValues(t, 120, fields["chars"])
	require.NotContains(t, fields, "url")
}
