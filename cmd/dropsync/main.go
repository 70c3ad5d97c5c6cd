package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/dropsync/cmd/dropsync/commands"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}
	parser := kong.Parse(cli,
		kong.Name("dropsync"),
		kong.Description("Copies vendor drop folders to their project destinations once they stop changing."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)

	if err := parser.Run(cli); err != nil {
		derrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
