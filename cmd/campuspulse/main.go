package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "campuspulse",
		Usage: "campus event lifecycle and notification delivery",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				EnvVars: []string{"CAMPUSPULSE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:        "serve",
				Usage:       "Start the HTTP API and the reminder scheduler",
				Category:    "Server",
				Description: "Serves the JSON API and live feed, and runs a scheduler tick every interval.",
				Action:      serve,
			},
			{
				Name:        "tick",
				Usage:       "Run one scheduler tick and exit",
				Category:    "Operations",
				Description: "Advances event statuses, creates due reminders and dispatches pending notifications once. Suitable for cron.",
				Action:      tick,
			},
			{
				Name:     "migrate",
				Usage:    "Apply database migrations",
				Category: "Operations",
				Action:   migrate,
			},
			{
				Name:     "vapid",
				Usage:    "Generate a VAPID key pair for web push",
				Category: "Operations",
				Action:   vapid,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "campuspulse:", err)
		os.Exit(1)
	}
}
