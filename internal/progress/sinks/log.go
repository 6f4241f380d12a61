package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/progress"
)

// LogSink emits structured logs for crawl progress. It is the default
// consumer wired by the CLI so long runs remain observable from the terminal.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event using structured fields. Per-item events log at
// debug level to keep full-catalog runs readable.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID.String()),
		zap.String("stage", string(evt.Stage)),
		zap.String("set", evt.SetCode),
	}
	if evt.Page > 0 {
		fields = append(fields, zap.Int("page", evt.Page))
	}
	if evt.CardNumber != "" {
		fields = append(fields, zap.String("card_number", evt.CardNumber))
	}
	fields = append(fields, zap.Int64("processed", evt.Processed))
	if evt.Total > 0 {
		fields = append(fields,
			zap.Int64("total", evt.Total),
			zap.Float64("pct", evt.Percent),
			zap.Duration("eta", evt.ETA),
		)
	}
	if evt.Rate > 0 {
		fields = append(fields, zap.Float64("cards_per_sec", evt.Rate))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	switch evt.Stage {
	case progress.StageItem, progress.StageItemSkip:
		s.logger.Debug("progress event", fields...)
	default:
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
