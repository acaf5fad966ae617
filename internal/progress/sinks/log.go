package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/progress"
)

type stageLog struct {
	msg   string
	level zapcore.Level
}

var stageLogs = map[progress.Stage]stageLog{
	progress.StageChunkStart:     {"chunk started", zapcore.DebugLevel},
	progress.StageChunkDone:      {"chunk finished", zapcore.InfoLevel},
	progress.StageChunkError:     {"chunk failed", zapcore.WarnLevel},
	progress.StageChainComplete:  {"crawl chain finished", zapcore.InfoLevel},
	progress.StageDispatchSent:   {"next chunk handed off", zapcore.InfoLevel},
	progress.StageDispatchFailed: {"chain stopped: hand-off failed", zapcore.WarnLevel},
}

// LogSink turns progress events into a readable chain history in the service
// logs. Failures are logged at warn level so broken chains stand out.
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

// Consume logs each event of the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		entry, ok := stageLogs[evt.Stage]
		if !ok {
			entry = stageLog{msg: "progress event", level: zapcore.InfoLevel}
		}
		ce := s.logger.Check(entry.level, entry.msg)
		if ce == nil {
			continue
		}
		ce.Write(eventFields(evt)...)
	}
	return nil
}

func eventFields(evt progress.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("invocation_id", evt.InvocationUUID().String()),
		zap.String("stage", string(evt.Stage)),
		zap.Time("ts", evt.TS),
	}
	switch evt.Stage {
	case progress.StageDispatchSent, progress.StageDispatchFailed:
		fields = append(fields, zap.Int("next_chunk", evt.Chunk), zap.Int("size", evt.Size))
	default:
		fields = append(fields,
			zap.Int("chunk", evt.Chunk),
			zap.Int("size", evt.Size),
			zap.Int("start", evt.Start),
			zap.Int("end", evt.End),
			zap.Int("total", evt.Total),
		)
	}
	if evt.Dur > 0 {
		fields = append(fields, zap.Duration("dur", evt.Dur))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	return fields
}

// Close implements progress.Sink; the logger is owned by the caller.
func (s *LogSink) Close(context.Context) error {
	return nil
}
