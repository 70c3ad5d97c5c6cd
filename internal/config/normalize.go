package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizationResult captures adjustments & warnings from normalization pass.
type NormalizationResult struct{ Warnings []string }

// NormalizeConfig canonicalizes enumerations and paths prior to default application.
func NormalizeConfig(c *Config) (*NormalizationResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config nil")
	}
	res := &NormalizationResult{}

	c.Sources = cleanPaths(c.Sources)
	c.Destinations.Bases = cleanPaths(c.Destinations.Bases)
	c.Destinations.IngestPrefix = strings.Trim(filepath.ToSlash(strings.TrimSpace(c.Destinations.IngestPrefix)), "/")
	if c.State.Directory != "" {
		c.State.Directory = filepath.Clean(strings.TrimSpace(c.State.Directory))
	}
	c.Polling.Interval = strings.TrimSpace(c.Polling.Interval)
	c.Daemon.StopTimeout = strings.TrimSpace(c.Daemon.StopTimeout)

	if raw := string(c.Destinations.Mode); raw != "" {
		mode, err := destinationModeNormalizer.NormalizeWithError(raw)
		if err != nil {
			return nil, fmt.Errorf("destinations.mode: %w", err)
		}
		if string(mode) != raw {
			res.Warnings = append(res.Warnings, warnChanged("destinations.mode", raw, mode))
		}
		c.Destinations.Mode = mode
	}
	if raw := string(c.Logging.Level); raw != "" {
		lvl := logLevelNormalizer.Normalize(raw)
		if string(lvl) != raw {
			res.Warnings = append(res.Warnings, warnChanged("logging.level", raw, lvl))
		}
		c.Logging.Level = lvl
	}
	if raw := string(c.Logging.Format); raw != "" {
		f := logFormatNormalizer.Normalize(raw)
		if string(f) != raw {
			res.Warnings = append(res.Warnings, warnChanged("logging.format", raw, f))
		}
		c.Logging.Format = f
	}
	return res, nil
}

func cleanPaths(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}

func warnChanged(field string, from, to any) string {
	return fmt.Sprintf("normalized %s from '%v' to '%v'", field, from, to)
}
