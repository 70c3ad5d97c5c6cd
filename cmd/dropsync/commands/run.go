package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"

	"git.home.luguber.info/inful/dropsync/internal/config"
	"git.home.luguber.info/inful/dropsync/internal/daemon"
	"git.home.luguber.info/inful/dropsync/internal/events"
	"git.home.luguber.info/inful/dropsync/internal/logfields"
	"git.home.luguber.info/inful/dropsync/internal/metrics"
	"git.home.luguber.info/inful/dropsync/internal/version"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	OverrideFlags
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, configPath, err := loadConfig(g, root, r.overrides())
	if err != nil {
		return err
	}
	return RunDaemon(cfg, configPath, r.overrides(), g.Logger)
}

// RunDaemon runs the poll loop until SIGINT or SIGTERM.
func RunDaemon(cfg *config.Config, configPath string, overrides config.Overrides, logger *slog.Logger) error {
	slog.Info("Starting dropsync", slog.String("version", version.Version), logfields.Count(len(cfg.Sources)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sinks, err := events.FromConfig(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			slog.Warn("Closing event sinks failed", logfields.Error(err))
		}
	}()

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	d, err := daemon.New(cfg, daemon.Options{
		FS:         afero.NewOsFs(),
		Events:     sinks,
		Recorder:   metrics.NewPrometheusRecorder(reg),
		Registry:   reg,
		ConfigPath: configPath,
		Overrides:  overrides,
	})
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping daemon...")

	// The scheduler waits up to the stop timeout for a running cycle.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.StopTimeout()+5*time.Second)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		return err
	}
	slog.Info("Daemon stopped successfully")
	return nil
}
