package events

import (
	"log/slog"

	"git.home.luguber.info/inful/dropsync/internal/config"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
)

// Sinks is the set built from configuration. Journal is nil when disabled.
type Sinks struct {
	Multi
	Journal *JournalSink
}

// FromConfig builds the log sink plus the optional journal and NATS sinks.
func FromConfig(cfg config.EventsConfig, logger *slog.Logger) (*Sinks, error) {
	s := &Sinks{Multi: Multi{NewLogSink(logger)}}

	if cfg.JournalPath != "" {
		j, err := NewJournalSink(cfg.JournalPath)
		if err != nil {
			return nil, derrors.WrapError(err, derrors.CategoryEvents, "failed to open event journal").
				Fatal().
				WithContext("path", cfg.JournalPath).
				Build()
		}
		s.Journal = j
		s.Multi = append(s.Multi, j)
	}

	if cfg.NATSURL != "" {
		n, err := NewNATSSink(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			_ = s.Close()
			return nil, derrors.WrapError(err, derrors.CategoryEvents, "failed to connect event publisher").
				Fatal().
				WithContext("url", cfg.NATSURL).
				Build()
		}
		s.Multi = append(s.Multi, n)
	}
	return s, nil
}
