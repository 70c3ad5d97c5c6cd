package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/dropsync/internal/config"
	"git.home.luguber.info/inful/dropsync/internal/daemon"
	"git.home.luguber.info/inful/dropsync/internal/events"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/state"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	JSON    bool `help:"Print JSON instead of a table"`
	History int  `help:"Also print the N most recent events from the event journal" default:"0"`
}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := loadConfig(g, root, config.Overrides{})
	if err != nil {
		return err
	}
	sources, err := CollectStatus(afero.NewOsFs(), cfg)
	if err != nil {
		return err
	}

	var recent []events.Event
	if s.History > 0 {
		recent, err = recentEvents(cfg.Events.JournalPath, s.History)
		if err != nil {
			return err
		}
	}

	if s.JSON {
		return writeStatusJSON(os.Stdout, sources, recent)
	}
	writeStatusTable(os.Stdout, sources)
	if len(recent) > 0 {
		writeEventsTable(os.Stdout, recent)
	}
	return nil
}

// CollectStatus reads the state file of every configured source.
func CollectStatus(fs afero.Fs, cfg *config.Config) ([]daemon.SourceStatus, error) {
	out := make([]daemon.SourceStatus, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		store, err := state.Open(fs, cfg.StatePath(src))
		if err != nil {
			return nil, err
		}
		ss := daemon.SourceStatus{Path: src, StateFile: store.Path(), Packages: []daemon.PackageStatus{}}
		for _, e := range store.All() {
			ss.Packages = append(ss.Packages, daemon.NewPackageStatus(e, cfg.Sync.MaxCopyRetries))
		}
		out = append(out, ss)
	}
	return out, nil
}

func recentEvents(journalPath string, limit int) ([]events.Event, error) {
	if journalPath == "" {
		return nil, derrors.ConfigError("event history requires events.journal_path").Build()
	}
	if _, err := os.Stat(journalPath); err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryNotFound, "event journal not found").
			WithContext("path", journalPath).
			Build()
	}
	j, err := events.NewJournalSink(journalPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = j.Close() }()
	return j.Recent(context.Background(), limit)
}

func writeStatusJSON(w io.Writer, sources []daemon.SourceStatus, recent []events.Event) error {
	payload := struct {
		Sources []daemon.SourceStatus `json:"sources"`
		Events  []events.Event        `json:"events,omitempty"`
	}{Sources: sources, Events: recent}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writeStatusTable(w io.Writer, sources []daemon.SourceStatus) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	for i, src := range sources {
		if i > 0 {
			_, _ = fmt.Fprintln(tw)
		}
		_, _ = fmt.Fprintf(tw, "SOURCE %s (%d packages)\n", src.Path, len(src.Packages))
		if len(src.Packages) == 0 {
			continue
		}
		_, _ = fmt.Fprintln(tw, "IDENTITY\tSTATUS\tCHECKS\tRETRIES\tDETECTED\tDESTINATION")
		for _, p := range src.Packages {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
				p.Identity, p.Status, p.StableChecks, p.CopyRetryCount,
				formatTime(p.DetectedAt), dash(p.Destination))
		}
	}
}

func writeEventsTable(w io.Writer, recent []events.Event) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	_, _ = fmt.Fprintln(tw)
	_, _ = fmt.Fprintln(tw, "TIME\tEVENT\tIDENTITY\tSOURCE")
	for _, e := range recent {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", formatTime(e.Time), e.Type, e.Identity, e.Source)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
