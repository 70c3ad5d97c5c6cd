// Package daemon runs the dropsync poll loop.
//
// Every cycle walks the configured source directories, feeds each package
// fingerprint to the stability tracker and hands the stable candidates to the
// copy orchestrator. Cycles are driven by a gocron singleton job so they never
// overlap; RunOnce runs a single cycle synchronously.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"git.home.luguber.info/inful/dropsync/internal/config"
	"git.home.luguber.info/inful/dropsync/internal/destination"
	"git.home.luguber.info/inful/dropsync/internal/events"
	"git.home.luguber.info/inful/dropsync/internal/fingerprint"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/logfields"
	"git.home.luguber.info/inful/dropsync/internal/metrics"
	"git.home.luguber.info/inful/dropsync/internal/naming"
	"git.home.luguber.info/inful/dropsync/internal/orchestrator"
	"git.home.luguber.info/inful/dropsync/internal/state"
	"git.home.luguber.info/inful/dropsync/internal/tracker"
)

// Status represents what the poll loop is doing right now.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusScanning Status = "scanning"
	StatusSyncing  Status = "syncing"
)

// Options carry the optional collaborators of a Daemon.
type Options struct {
	FS         afero.Fs         // defaults to the OS filesystem
	Clock      clockwork.Clock  // defaults to the real clock
	Events     events.Sink      // defaults to a log sink on slog.Default()
	Recorder   metrics.Recorder // defaults to a no-op recorder
	Registry   *prom.Registry   // served on /metrics when the admin endpoint is enabled
	ConfigPath string           // watched for changes by Start when set
	Overrides  config.Overrides // re-applied on every reload
}

// sourceRuntime holds the per-source collaborators.
type sourceRuntime struct {
	path    string
	store   *state.Store
	tracker *tracker.Tracker
	orch    *orchestrator.Orchestrator
}

// Daemon represents the main daemon service.
type Daemon struct {
	mu       sync.RWMutex
	config   *config.Config
	parser   *naming.Parser
	fs       afero.Fs
	clock    clockwork.Clock
	events   events.Sink
	recorder metrics.Recorder
	registry *prom.Registry
	opts     Options

	policy    *tracker.Policy
	resolver  *destination.Resolver
	collector *fingerprint.Collector
	sources   []*sourceRuntime

	status    atomic.Value // Status
	startTime time.Time
	lastCycle atomic.Pointer[CycleReport]

	// cycleMu serializes cycles between the scheduler and RunOnce.
	cycleMu sync.Mutex
	warned  map[string]struct{}

	scheduler  *Scheduler
	watcher    *ConfigWatcher
	httpServer *HTTPServer
	running    atomic.Bool
}

// New opens the state store of every source and wires the poll loop.
// A corrupt state file is returned as a fatal state error.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, derrors.ConfigError("configuration is required").Build()
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Events == nil {
		opts.Events = events.NewLogSink(slog.Default())
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}

	parser, err := naming.NewParser(cfg.Naming.Pattern)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		config:    cfg,
		parser:    parser,
		fs:        opts.FS,
		clock:     opts.Clock,
		events:    opts.Events,
		recorder:  opts.Recorder,
		registry:  opts.Registry,
		opts:      opts,
		policy:    tracker.NewPolicy(cfg.Polling.NumberOfChecks, cfg.Sync.MaxCopyRetries),
		resolver:  destination.NewResolver(opts.FS, cfg.Destinations),
		collector: fingerprint.NewCollector(opts.FS),
		warned:    make(map[string]struct{}),
	}
	d.status.Store(StatusIdle)

	for _, src := range cfg.Sources {
		store, err := state.Open(opts.FS, cfg.StatePath(src))
		if err != nil {
			return nil, err
		}
		tr := tracker.New(store, d.policy, opts.Clock)
		d.sources = append(d.sources, &sourceRuntime{
			path:    src,
			store:   store,
			tracker: tr,
			orch: orchestrator.New(orchestrator.Deps{
				Source:    src,
				FS:        opts.FS,
				Store:     store,
				Tracker:   tr,
				Policy:    d.policy,
				Collector: d.collector,
				Resolver:  d.resolver,
				Events:    opts.Events,
				Recorder:  opts.Recorder,
				Clock:     opts.Clock,
			}),
		})
		slog.Info("Loaded sync state",
			logfields.Source(src),
			logfields.Path(store.Path()),
			logfields.Count(store.Len()))
	}
	return d, nil
}

// Start schedules the poll loop and starts the optional admin endpoint and
// config watcher. It returns once everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return derrors.DaemonError("daemon already running").Build()
	}
	d.startTime = d.clock.Now()
	cfg := d.GetConfig()

	sched, err := NewScheduler(d.clock, cfg.StopTimeout())
	if err != nil {
		d.running.Store(false)
		return err
	}
	if err := sched.SchedulePoll(ctx, cfg.PollInterval(), d.scheduledCycle); err != nil {
		_ = sched.Stop()
		d.running.Store(false)
		return err
	}
	d.scheduler = sched

	if cfg.Monitoring.HTTPAddr != "" {
		d.httpServer = NewHTTPServer(cfg.Monitoring.HTTPAddr, d)
		if err := d.httpServer.Start(); err != nil {
			_ = sched.Stop()
			d.running.Store(false)
			return err
		}
	}

	if d.opts.ConfigPath != "" {
		w, err := NewConfigWatcher(d.opts.ConfigPath, d)
		if err != nil {
			slog.Warn("Config watcher disabled", logfields.Error(err))
		} else if err := w.Start(ctx); err != nil {
			slog.Warn("Config watcher disabled", logfields.Error(err))
			_ = w.Stop()
		} else {
			d.watcher = w
		}
	}

	sched.Start()
	slog.Info("Daemon started",
		logfields.Count(len(d.sources)),
		slog.Duration("interval", cfg.PollInterval()),
		slog.Int("number_of_checks", d.policy.NumberOfChecks()),
		slog.Int("max_copy_retries", d.policy.MaxCopyRetries()))
	return nil
}

// Stop shuts the scheduler down, waiting up to the configured stop timeout
// for the running cycle, then flushes every state store.
func (d *Daemon) Stop(ctx context.Context) error {
	if !d.running.CompareAndSwap(true, false) {
		return nil
	}
	var errs []error
	if d.watcher != nil {
		_ = d.watcher.Stop()
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.httpServer != nil {
		if err := d.httpServer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, src := range d.sources {
		if err := src.store.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	slog.Info("Daemon stopped", slog.Duration("uptime", d.clock.Since(d.startTime)))
	return errors.Join(errs...)
}

// Status reports what the poll loop is doing.
func (d *Daemon) Status() Status {
	s, _ := d.status.Load().(Status)
	return s
}

func (d *Daemon) setStatus(s Status) { d.status.Store(s) }

// GetConfig returns the active configuration.
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// LastCycle returns the report of the most recent cycle, or nil.
func (d *Daemon) LastCycle() *CycleReport {
	return d.lastCycle.Load()
}

// ReloadConfig applies the runtime-tunable parts of cfg: thresholds,
// destinations, naming pattern and poll interval. Source and state layout
// changes need a restart.
func (d *Daemon) ReloadConfig(cfg *config.Config) error {
	parser, err := naming.NewParser(cfg.Naming.Pattern)
	if err != nil {
		return err
	}

	d.mu.Lock()
	old := d.config
	if !slices.Equal(old.Sources, cfg.Sources) || old.State != cfg.State {
		slog.Warn("Source or state layout changes require a restart")
	}
	if old.Monitoring.HTTPAddr != cfg.Monitoring.HTTPAddr {
		slog.Warn("Monitoring address changes require a restart")
	}
	d.config = cfg
	d.parser = parser
	d.mu.Unlock()

	d.policy.Set(cfg.Polling.NumberOfChecks, cfg.Sync.MaxCopyRetries)
	d.resolver.Update(cfg.Destinations)

	if d.scheduler != nil && old.PollInterval() != cfg.PollInterval() {
		if err := d.scheduler.Reschedule(cfg.PollInterval()); err != nil {
			return fmt.Errorf("reschedule poll: %w", err)
		}
	}
	slog.Info("Configuration applied",
		slog.Duration("interval", cfg.PollInterval()),
		slog.Int("number_of_checks", d.policy.NumberOfChecks()),
		slog.Int("max_copy_retries", d.policy.MaxCopyRetries()))
	return nil
}

func (d *Daemon) namingParser() *naming.Parser {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.parser
}
