package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/cmd"
	"github.com/feedsync/internal/config"
	"github.com/feedsync/internal/logging"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "feedsync",
		Usage:   "Read, write and react to a social feed from the terminal",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json or yaml",
				Value:   cmd.FormatText,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override log.level",
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			cmd.FeedCommand(),
			cmd.ComposeCommand(),
			cmd.ReactCommand(),
			cmd.BookmarkCommand(),
			cmd.ThreadCommand(),
			cmd.DeleteCommand(),
			cmd.NotificationsCommand(),
			cmd.WatchCommand(),
			cmd.DevServerCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// setupLogging configures the global logger from the config file, falling
// back to defaults when the file cannot be read so that `config init` works.
func setupLogging(c *cli.Context) error {
	level, format := "info", "console"
	if cfg, err := config.LoadConfig(c.String("config")); err == nil {
		level, format = cfg.Log.Level, cfg.Log.Format
	}
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	return logging.Setup(level, format)
}
