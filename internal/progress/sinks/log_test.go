package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/SmallTyrant/hocg-catalog/internal/progress"
)

// TestLogSinkLevels checks that high-volume item events stay at debug while
// run milestones log at info.
func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	ctx := context.Background()
	runID := uuid.New()

	require.NoError(t, sink.Consume(ctx, progress.Event{
		RunID: runID, TS: time.Now(), Stage: progress.StageRunStart, SetCode: "ALL",
	}))
	require.NoError(t, sink.Consume(ctx, progress.Event{
		RunID: runID, TS: time.Now(), Stage: progress.StageItem, CardNumber: "hBP04-002",
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.DebugLevel, entries[1].Level)
	assert.Equal(t, "hBP04-002", entries[1].ContextMap()["card_number"])
}

// TestLogSinkOmitsEmptyFields verifies optional fields are only attached when set.
func TestLogSinkOmitsEmptyFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), progress.Event{
		RunID: uuid.New(), TS: time.Now(), Stage: progress.StageHeartbeat, SetCode: "ALL",
		Processed: 40, Total: 80, Percent: 50, ETA: time.Minute, Rate: 2.5,
	}))

	fields := logs.All()[0].ContextMap()
	assert.NotContains(t, fields, "card_number")
	assert.NotContains(t, fields, "page")
	assert.Equal(t, int64(80), fields["total"])
	assert.Equal(t, 50.0, fields["pct"])
	assert.Equal(t, 2.5, fields["cards_per_sec"])
}
