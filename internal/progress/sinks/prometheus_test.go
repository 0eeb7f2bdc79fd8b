package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mywebintelligence/mwi/internal/progress"
)

func TestPrometheusSinkRecordsRunAndPages(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart, Operation: "crawl", Land: "asthma"},
		{
			RunID:       runID,
			TS:          time.Now(),
			Stage:       progress.StagePageDone,
			Operation:   "crawl",
			Land:        "asthma",
			StatusClass: progress.Status2xx,
			Dur:         150 * time.Millisecond,
		},
		{
			RunID:       runID,
			TS:          time.Now(),
			Stage:       progress.StagePageDone,
			Operation:   "crawl",
			Land:        "asthma",
			StatusClass: progress.StatusNone,
		},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunDone, Operation: "crawl", Land: "asthma", Dur: 12 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("crawl")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("crawl", "success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("crawl", "error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesProcessed.WithLabelValues("asthma", "2xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesProcessed.WithLabelValues("asthma", "none")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.pageDuration, "mwi_page_duration_seconds"))
}

func TestPrometheusSinkRepeatedDoneKeepsGaugeBalanced(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Operation: "readable"},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Operation: "readable"},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Operation: "readable"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
}
