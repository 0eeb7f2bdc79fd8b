// Package sinks provides Sink implementations for the run event hub.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/progress"
)

// LogSink writes run events as structured logs. Useful in development
// and when no metrics endpoint is exposed.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

// Consume logs each event of the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.log.Info("run event",
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("operation", evt.Operation),
			zap.String("land", evt.Land),
			zap.String("url", evt.URL),
			zap.Int64("processed", evt.Processed),
			zap.Int64("errors", evt.Errors),
			zap.String("status_class", string(evt.StatusClass)),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface.
func (s *LogSink) Close(context.Context) error { return nil }
