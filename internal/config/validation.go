package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ValidateConfig validates a normalized, defaulted configuration.
func ValidateConfig(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	return v.validate()
}

type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateSources(); err != nil {
		return err
	}
	if err := cv.validateDestinations(); err != nil {
		return err
	}
	if err := cv.validatePolling(); err != nil {
		return err
	}
	if err := cv.validateNaming(); err != nil {
		return err
	}
	if err := cv.validateEvents(); err != nil {
		return err
	}
	if _, err := parsePositiveDuration("daemon.stop_timeout", cv.config.Daemon.StopTimeout); err != nil {
		return err
	}
	return nil
}

func (cv *configurationValidator) validateSources() error {
	if len(cv.config.Sources) == 0 {
		return errors.New("at least one source directory must be configured")
	}
	seen := make(map[string]string, len(cv.config.Sources))
	for _, src := range cv.config.Sources {
		path := cv.config.StatePath(src)
		if other, dup := seen[path]; dup {
			return fmt.Errorf("sources %s and %s would share state file %s", other, src, path)
		}
		seen[path] = src
	}
	return nil
}

func (cv *configurationValidator) validateDestinations() error {
	if len(cv.config.Destinations.Bases) == 0 {
		return errors.New("at least one destination base must be configured")
	}
	switch cv.config.Destinations.Mode {
	case DestinationModeFirst, DestinationModeAll:
	default:
		return fmt.Errorf("invalid destinations.mode: %s", cv.config.Destinations.Mode)
	}
	return nil
}

func (cv *configurationValidator) validatePolling() error {
	if _, err := parsePositiveDuration("polling.interval", cv.config.Polling.Interval); err != nil {
		return err
	}
	if cv.config.Polling.NumberOfChecks < 1 {
		return fmt.Errorf("polling.number_of_checks must be >= 1, got %d", cv.config.Polling.NumberOfChecks)
	}
	if cv.config.Sync.MaxCopyRetries < 1 {
		return fmt.Errorf("sync.max_copy_retries must be >= 1, got %d", cv.config.Sync.MaxCopyRetries)
	}
	return nil
}

func (cv *configurationValidator) validateNaming() error {
	re, err := regexp.Compile(cv.config.Naming.Pattern)
	if err != nil {
		return fmt.Errorf("naming.pattern: %w", err)
	}
	if re.NumSubexp() != 2 {
		return fmt.Errorf("naming.pattern must have exactly two capture groups (project, user), got %d", re.NumSubexp())
	}
	return nil
}

func (cv *configurationValidator) validateEvents() error {
	if cv.config.Events.NATSURL != "" && cv.config.Events.NATSSubject == "" {
		return errors.New("events.nats_subject is required when events.nats_url is set")
	}
	return nil
}

func parsePositiveDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, raw)
	}
	return d, nil
}
