package config

// Default values applied to unset fields.
const (
	DefaultInterval       = "10s"
	DefaultNumberOfChecks = 3
	DefaultMaxCopyRetries = 3
	DefaultStateFileName  = "folder_states.json"
	DefaultIngestPrefix   = "in/vendors"
	DefaultNamingPattern  = `^([^-]*)-([^-]*)$`
	DefaultNATSSubject    = "dropsync.events"
	DefaultStopTimeout    = "2m"
)

// Default returns a configuration with every default applied and no sources or destinations.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(c *Config) {
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	if c.Polling.Interval == "" {
		c.Polling.Interval = DefaultInterval
	}
	if c.Polling.NumberOfChecks == 0 {
		c.Polling.NumberOfChecks = DefaultNumberOfChecks
	}
	if c.Sync.MaxCopyRetries == 0 {
		c.Sync.MaxCopyRetries = DefaultMaxCopyRetries
	}
	if c.State.FileName == "" {
		c.State.FileName = DefaultStateFileName
	}
	if c.Destinations.IngestPrefix == "" {
		c.Destinations.IngestPrefix = DefaultIngestPrefix
	}
	if c.Destinations.Mode == "" {
		c.Destinations.Mode = DestinationModeFirst
	}
	if c.Naming.Pattern == "" {
		c.Naming.Pattern = DefaultNamingPattern
	}
	if c.Events.NATSSubject == "" {
		c.Events.NATSSubject = DefaultNATSSubject
	}
	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
	if c.Daemon.StopTimeout == "" {
		c.Daemon.StopTimeout = DefaultStopTimeout
	}
}
