package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/dropsync/internal/daemon"
	"git.home.luguber.info/inful/dropsync/internal/events"
	"git.home.luguber.info/inful/dropsync/internal/logfields"
	"git.home.luguber.info/inful/dropsync/internal/orchestrator"
)

// OnceCmd implements the 'once' command.
type OnceCmd struct {
	OverrideFlags
}

func (o *OnceCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := loadConfig(g, root, o.overrides())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sinks, err := events.FromConfig(cfg.Events, g.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			slog.Warn("Closing event sinks failed", logfields.Error(err))
		}
	}()

	d, err := daemon.New(cfg, daemon.Options{FS: afero.NewOsFs(), Events: sinks})
	if err != nil {
		return err
	}
	report, err := d.RunOnce(ctx)
	if report != nil {
		printReport(os.Stdout, report)
	}
	return err
}

func printReport(w io.Writer, r *daemon.CycleReport) {
	_, _ = fmt.Fprintf(w, "cycle %s: %d packages observed, %d candidates\n", r.CycleID, r.Packages, r.Candidates)
	outcomes := make([]string, 0, len(r.Outcomes))
	for o := range r.Outcomes {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		_, _ = fmt.Fprintf(w, "  %-16s %d\n", o, r.Outcomes[orchestrator.Outcome(o)])
	}
	if r.ScanErrors > 0 || r.NamingViolations > 0 {
		_, _ = fmt.Fprintf(w, "  scan errors %d, naming violations %d\n", r.ScanErrors, r.NamingViolations)
	}
}
