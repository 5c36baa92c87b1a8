package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/feed"
	"github.com/feedsync/pkg/models"
)

// FeedCommand returns the feed command
func FeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Show the home feed",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "pages",
				Aliases: []string{"n"},
				Usage:   "Number of pages to load",
				Value:   1,
			},
		},
		Action: runFeed,
	}
}

func runFeed(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	session := feed.NewSession(feed.NewHTTPFetcher(rt.api), rt.viewer.ID)
	defer session.Close()

	snap, err := loadPages(c.Context, session, c.Int("pages"))
	if err != nil {
		return err
	}
	return rt.print(snap, func(w io.Writer) {
		if len(snap.Items) == 0 {
			fmt.Fprintln(w, "The feed is empty")
			return
		}
		printItems(w, snap.Items, 0)
		if snap.HasMore {
			fmt.Fprintf(w, "more items after cursor %s\n", snap.NextCursor)
		}
	})
}

// loadPages loads the first page and up to pages-1 more
func loadPages(ctx context.Context, session *feed.Session, pages int) (models.FeedSnapshot, error) {
	if err := session.Load(ctx); err != nil {
		return models.FeedSnapshot{}, fmt.Errorf("failed to load feed: %w", err)
	}
	for i := 1; i < pages && session.Snapshot().HasMore; i++ {
		if err := session.LoadMore(ctx); err != nil {
			return models.FeedSnapshot{}, fmt.Errorf("failed to load more: %w", err)
		}
	}
	return session.Snapshot(), nil
}
