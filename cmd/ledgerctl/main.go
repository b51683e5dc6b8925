// Command ledgerctl runs maintenance tasks against the ledger database.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"famfinance/internal/cli"
)

var (
	// Version is set via ldflags when building.
	Version = "dev"

	app struct {
		Version kong.VersionFlag `help:"Show version information"`
		Commands
	}
)

func main() {
	cli.LoadEnvFile()

	ctx := kong.Parse(&app,
		kong.Vars{"version": Version},
		kong.Name("ledgerctl"),
		kong.Description("Maintenance commands for the family ledger."),
		kong.UsageOnError(),
		kong.Bind(&app.Globals),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func printf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}
