package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/feed"
	"github.com/feedsync/internal/notifications"
	"github.com/feedsync/internal/watch"
)

// WatchCommand returns the watch command
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Poll the feed on a schedule and print new items",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "schedule",
				Aliases: []string{"s"},
				Usage:   "Cron schedule, overrides watch.schedule (e.g. \"@every 30s\")",
			},
		},
		Action: runWatch,
	}
}

func runWatch(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	schedule := rt.cfg.Watch.Schedule
	if c.IsSet("schedule") {
		schedule = c.String("schedule")
	}

	session := feed.NewSession(feed.NewHTTPFetcher(rt.api), rt.viewer.ID)
	defer session.Close()
	var center *notifications.Center
	if rt.viewer.Authenticated() {
		center = notifications.NewCenter(notifications.NewHTTPGateway(rt.api), 0)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watch.New(session, center).Run(ctx, schedule, func(u watch.Update) {
		if err := rt.print(u, func(w io.Writer) {
			printItems(w, u.NewItems, 0)
			if center != nil {
				fmt.Fprintf(w, "%d unread notifications\n", u.UnreadCount)
			}
		}); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "Error: %s\n", err)
		}
	})
}
