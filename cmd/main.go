package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"cotreporter/cmd/ingest"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "COT Reporter CMD"
	app.Usage = "The COT reporter command line interface"

	app.Commands = []cli.Command{
		ingestCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var ingestCMD = cli.Command{
	Name:        "ingest",
	Usage:       "build reports from source files and seed the store",
	Action:      ingestAction,
	ArgsUsage:   "<report source files>",
	Flags:       []cli.Flag{},
	Description: `Parse weekly report source files, recompute the COT Index windows, and fill the asset and report tables`,
}

func ingestAction(c *cli.Context) error {
	return ingest.Run(context.Background(), c.Args())
}
