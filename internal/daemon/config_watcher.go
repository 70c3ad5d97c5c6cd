package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/dropsync/internal/config"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/logfields"
)

const defaultReloadDebounce = 2 * time.Second

// ConfigWatcher monitors the configuration file and applies changes to the daemon.
type ConfigWatcher struct {
	configPath   string
	daemon       *Daemon
	watcher      *fsnotify.Watcher
	stopOnce     sync.Once
	stopChan     chan struct{}
	reloadChan   chan struct{}
	debounceTime time.Duration
}

// NewConfigWatcher creates a new configuration file watcher.
func NewConfigWatcher(configPath string, daemon *Daemon) (*ConfigWatcher, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to resolve config path").
			WithContext("path", configPath).
			Build()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryDaemon, "failed to create file watcher").Build()
	}

	return &ConfigWatcher{
		configPath:   absPath,
		daemon:       daemon,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
		debounceTime: defaultReloadDebounce,
	}, nil
}

// Start begins monitoring the configuration file.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	// Editors replace files on save, so the directory is watched rather than the file.
	configDir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(configDir); err != nil {
		return derrors.WrapError(err, derrors.CategoryDaemon, "failed to watch config directory").
			WithContext("path", configDir).
			Build()
	}

	slog.Info("Starting configuration watcher", logfields.Path(cw.configPath))

	go cw.watchLoop(ctx)
	go cw.reloadLoop(ctx)
	return nil
}

// Stop stops the configuration watcher. It is safe to call more than once.
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		slog.Info("Stopping configuration watcher")
		close(cw.stopChan)
		err = cw.watcher.Close()
	})
	return err
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	configFile := filepath.Base(cw.configPath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopChan:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
				slog.Debug("Config file change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				cw.triggerReload()
			case event.Has(fsnotify.Remove):
				slog.Warn("Config file removed", logfields.Path(event.Name))
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", logfields.Error(err))
		}
	}
}

// reloadLoop coalesces bursts of change events into one reload.
func (cw *ConfigWatcher) reloadLoop(ctx context.Context) {
	var reloadTimer *time.Timer
	stopTimer := func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			return
		case <-cw.stopChan:
			stopTimer()
			return
		case <-cw.reloadChan:
			stopTimer()
			reloadTimer = time.AfterFunc(cw.debounceTime, func() {
				if err := cw.performReload(); err != nil {
					slog.Error("Failed to reload configuration, keeping the current one", logfields.Error(err))
				}
			})
		}
	}
}

func (cw *ConfigWatcher) triggerReload() {
	select {
	case cw.reloadChan <- struct{}{}:
	default:
	}
}

// performReload loads, re-applies CLI overrides, validates and applies the configuration.
func (cw *ConfigWatcher) performReload() error {
	slog.Info("Reloading configuration", logfields.Path(cw.configPath))

	cfg, err := config.Load(cw.configPath)
	if err != nil {
		return err
	}
	cw.daemon.opts.Overrides.Apply(cfg)
	if err := config.Finalize(cfg); err != nil {
		return err
	}
	return cw.daemon.ReloadConfig(cfg)
}
