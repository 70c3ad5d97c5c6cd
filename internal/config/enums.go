package config

import (
	"git.home.luguber.info/inful/dropsync/internal/foundation/normalization"
)

// DestinationMode selects how many matching destination bases receive a package.
type DestinationMode string

const (
	DestinationModeFirst DestinationMode = "first"
	DestinationModeAll   DestinationMode = "all"
)

var destinationModeNormalizer = normalization.NewNormalizer(map[string]DestinationMode{
	"first": DestinationModeFirst,
	"all":   DestinationModeAll,
}, DestinationModeFirst)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = normalization.NewNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)
