package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/dropsync/internal/config"
	"git.home.luguber.info/inful/dropsync/internal/observability"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" default:"dropsync.yaml" env:"DROPSYNC_CONFIG"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log output format (text, json); defaults to the config file setting"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run    RunCmd    `cmd:"" help:"Start the daemon and poll the source directories until interrupted"`
	Once   OnceCmd   `cmd:"" help:"Run a single poll cycle and exit"`
	Status StatusCmd `cmd:"" help:"Show the sync state of every package"`
	Init   InitCmd   `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = observability.NewLogger(os.Stderr, level, c.LogFormat)
	slog.SetDefault(g.Logger)
	return nil
}

// OverrideFlags are the config overrides shared by run and once.
type OverrideFlags struct {
	Source   []string `short:"s" help:"Source directory to poll (repeatable, replaces configured sources)"`
	Dest     []string `short:"d" help:"Destination base directory (repeatable, replaces configured bases)"`
	Interval string   `help:"Poll interval, e.g. 10s"`
	Checks   int      `help:"Consecutive identical observations required before copying"`
	Retries  int      `help:"Copy attempts before a package is marked failed"`
}

func (o OverrideFlags) overrides() config.Overrides {
	return config.Overrides{
		Sources:      o.Source,
		Destinations: o.Dest,
		Interval:     o.Interval,
		Checks:       o.Checks,
		Retries:      o.Retries,
	}
}

// loadConfig loads the configuration file and applies command line overrides.
// Without a configuration file, sources and destinations given on the command
// line are enough to run with defaults. configPath is empty in that case.
func loadConfig(g *Global, root *CLI, o config.Overrides) (cfg *config.Config, configPath string, err error) {
	if _, statErr := os.Stat(root.Config); statErr == nil {
		cfg, err = config.Load(root.Config)
		if err != nil {
			return nil, "", err
		}
		configPath = root.Config
	} else if len(o.Sources) > 0 && len(o.Destinations) > 0 {
		slog.Info("No configuration file, using command line settings", slog.String("config", root.Config))
		cfg = config.Default()
	} else {
		return nil, "", config.NotFoundError(root.Config)
	}

	o.Apply(cfg)
	if err := config.Finalize(cfg); err != nil {
		return nil, "", err
	}
	applyLogging(g, root, cfg)
	return cfg, configPath, nil
}

// applyLogging re-creates the logger from the configuration unless flags already decided.
func applyLogging(g *Global, root *CLI, cfg *config.Config) {
	level := observability.ParseLevel(string(cfg.Logging.Level))
	if root.Verbose {
		level = slog.LevelDebug
	}
	format := root.LogFormat
	if format == "" {
		format = string(cfg.Logging.Format)
	}
	g.Logger = observability.NewLogger(os.Stderr, level, format)
	slog.SetDefault(g.Logger)
}
