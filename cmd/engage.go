package cmd

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/bookmarks"
	"github.com/feedsync/internal/reactions"
	"github.com/feedsync/pkg/models"
)

// ReactCommand returns the react command
func ReactCommand() *cli.Command {
	return &cli.Command{
		Name:      "react",
		Usage:     "Toggle a reaction on an assertion, or show its reactions",
		ArgsUsage: "ASSERTION_ID [like|acknowledge]",
		Action:    runReact,
	}
}

func runReact(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: ASSERTION_ID")
	}
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	id := c.Args().Get(0)
	tracker := reactions.NewTracker(reactions.NewHTTPGateway(rt.api), id, nil)
	if err := tracker.Load(c.Context); err != nil {
		return err
	}

	if c.NArg() > 1 {
		if err := rt.requireViewer(); err != nil {
			return err
		}
		if err := tracker.Toggle(c.Context, models.ReactionType(c.Args().Get(1))); err != nil {
			return err
		}
	}

	v := tracker.View()
	state := models.ReactionsState{Counts: v.Counts, UserReactions: v.UserReactions}
	return rt.print(state, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %d like, %d acknowledge", id, v.Counts.Like, v.Counts.Acknowledge)
		if len(v.UserReactions) > 0 {
			fmt.Fprintf(w, " (you: %v)", v.UserReactions)
		}
		fmt.Fprintln(w)
	})
}

// BookmarkCommand returns the bookmark command
func BookmarkCommand() *cli.Command {
	return &cli.Command{
		Name:      "bookmark",
		Usage:     "Toggle the bookmark on an assertion",
		ArgsUsage: "ASSERTION_ID",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Only show whether the assertion is bookmarked",
			},
		},
		Action: runBookmark,
	}
}

func runBookmark(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: ASSERTION_ID")
	}
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.requireViewer(); err != nil {
		return err
	}

	id := c.Args().Get(0)
	tracker := bookmarks.NewTracker(bookmarks.NewHTTPGateway(rt.api), id, rt.viewer)
	if err := tracker.Load(c.Context); err != nil {
		return err
	}
	if !c.Bool("status") {
		tracker.Toggle(c.Context)
		if err := tracker.Wait(); err != nil {
			return err
		}
	}

	state := models.BookmarkState{IsBookmarked: tracker.View().IsBookmarked}
	return rt.print(state, func(w io.Writer) {
		if state.IsBookmarked {
			fmt.Fprintf(w, "%s is bookmarked\n", id)
		} else {
			fmt.Fprintf(w, "%s is not bookmarked\n", id)
		}
	})
}
