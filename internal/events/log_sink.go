package events

import (
	"context"
	"log/slog"
	"sort"

	"git.home.luguber.info/inful/dropsync/internal/logfields"
)

// LogSink writes events to a slog logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, e Event) error {
	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
		logfields.Identity(e.Identity),
		logfields.Source(e.Source),
	}
	if e.CycleID != "" {
		attrs = append(attrs, logfields.CycleID(e.CycleID))
	}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, e.Attrs[k]))
	}
	s.logger.LogAttrs(ctx, levelFor(e.Type), messageFor(e.Type), attrs...)
	return nil
}

func (s *LogSink) Close() error { return nil }

func levelFor(t Type) slog.Level {
	switch t {
	case TypeCopyFailed:
		return slog.LevelWarn
	case TypeSyncFailedPermanent:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func messageFor(t Type) string {
	switch t {
	case TypeDetected:
		return "New package folder detected"
	case TypeStable:
		return "Package folder is stable"
	case TypeChanged:
		return "Package folder changed, stability reset"
	case TypeCopyStarted:
		return "Copying package"
	case TypeCopyVerified:
		return "Package copied and verified"
	case TypeCopyFailed:
		return "Package copy failed, will retry"
	case TypeSyncFailedPermanent:
		return "Package sync failed permanently"
	default:
		return string(t)
	}
}
