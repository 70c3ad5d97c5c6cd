package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Version: CurrentVersion,
		Sources: []string{"/data/incoming"},
		Destinations: DestinationsConfig{
			Bases:        []string{"/mnt/projects"},
			IngestPrefix: DefaultIngestPrefix,
			Mode:         DestinationModeFirst,
		},
		Polling: PollingConfig{
			Interval:       DefaultInterval,
			NumberOfChecks: DefaultNumberOfChecks,
		},
		Sync:   SyncConfig{MaxCopyRetries: DefaultMaxCopyRetries},
		State:  StateConfig{FileName: DefaultStateFileName},
		Naming: NamingConfig{Pattern: DefaultNamingPattern},
		Events: EventsConfig{
			JournalPath: "",
			NATSURL:     "${DROPSYNC_NATS_URL}",
			NATSSubject: DefaultNATSSubject,
		},
		Monitoring: MonitoringConfig{HTTPAddr: ":9108"},
		Logging:    LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Daemon:     DaemonConfig{StopTimeout: DefaultStopTimeout},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
