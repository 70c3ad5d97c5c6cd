package config

import (
	"path/filepath"
	"time"
)

// CurrentVersion is the configuration format version written by Init.
const CurrentVersion = "1.0"

// Config is the dropsync configuration file.
type Config struct {
	Version      string             `yaml:"version"`
	Sources      []string           `yaml:"sources"`
	Destinations DestinationsConfig `yaml:"destinations"`
	Polling      PollingConfig      `yaml:"polling"`
	Sync         SyncConfig         `yaml:"sync"`
	State        StateConfig        `yaml:"state"`
	Naming       NamingConfig       `yaml:"naming"`
	Events       EventsConfig       `yaml:"events"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	Daemon       DaemonConfig       `yaml:"daemon"`
}

// DestinationsConfig describes where stable packages are copied to.
type DestinationsConfig struct {
	Bases        []string        `yaml:"bases"`         // Destination roots holding one directory per project
	IngestPrefix string          `yaml:"ingest_prefix"` // Path below the project directory, e.g. in/vendors
	Mode         DestinationMode `yaml:"mode"`          // first|all
}

// PollingConfig controls the poll loop.
type PollingConfig struct {
	Interval       string `yaml:"interval"`
	NumberOfChecks int    `yaml:"number_of_checks"`
}

// SyncConfig controls the copy retry budget.
type SyncConfig struct {
	MaxCopyRetries int `yaml:"max_copy_retries"`
}

// StateConfig controls where each source's state file lives.
type StateConfig struct {
	FileName  string `yaml:"file_name"`
	Directory string `yaml:"directory"` // empty = inside each source
}

// NamingConfig holds the top-level folder naming convention.
type NamingConfig struct {
	Pattern string `yaml:"pattern"`
}

// EventsConfig enables the optional event sinks.
type EventsConfig struct {
	JournalPath string `yaml:"journal_path"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// MonitoringConfig enables the admin HTTP endpoint.
type MonitoringConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// DaemonConfig controls daemon lifecycle.
type DaemonConfig struct {
	StopTimeout string `yaml:"stop_timeout"`
}

// PollInterval returns the parsed poll interval. Validation guarantees it parses.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Polling.Interval)
	return d
}

// StopTimeout returns the parsed graceful shutdown timeout.
func (c *Config) StopTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Daemon.StopTimeout)
	return d
}

// StatePath returns the state file used for a source directory.
// Without a state directory the file sits inside the source; otherwise the
// source's base name prefixes the file name.
func (c *Config) StatePath(source string) string {
	if c.State.Directory == "" {
		return filepath.Join(source, c.State.FileName)
	}
	return filepath.Join(c.State.Directory, filepath.Base(filepath.Clean(source))+"-"+c.State.FileName)
}
