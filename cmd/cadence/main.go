package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

const version = "0.3.0"

func Execute(args []string) error {
	app := cli.App{
		Name:      "cadence",
		HelpName:  "cadence",
		Usage:     "drift-free periodic and calendar tickers",
		Version:   version,
		UsageText: "cadence <command> [arguments...]",
		Commands: []cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "run the tickers declared in a config file",
				Action:  run,
				Flags:   runFlags,
			},
			{
				Name:    "check",
				Aliases: []string{"c"},
				Usage:   "validate a config file and show upcoming ticks",
				Action:  check,
				Flags:   checkFlags,
			},
			{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "print the ticks of an ad-hoc ticker",
				Action:  watch,
				Flags:   watchFlags,
			},
			{
				Name:    "journal",
				Aliases: []string{"j"},
				Usage:   "show journaled ticks and their timing",
				Action:  journal,
				Flags:   journalFlags,
			},
		},
		UseShortOptionHandling: true,
	}
	return app.Run(args)
}

func main() {
	if err := Execute(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cadence: %s\n", err.Error())
		os.Exit(1)
	}
}
