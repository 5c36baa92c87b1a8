package cmd

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/internal/composer"
	"github.com/feedsync/internal/home"
	"github.com/feedsync/internal/publication"
	"github.com/feedsync/internal/thread"
	"github.com/feedsync/pkg/models"
)

// ThreadCommand returns the thread command
func ThreadCommand() *cli.Command {
	return &cli.Command{
		Name:      "thread",
		Usage:     "Show an assertion with its responses, optionally replying",
		ArgsUsage: "ASSERTION_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "reply",
				Aliases: []string{"r"},
				Usage:   "Publish `TEXT` as a response to the thread root",
			},
		},
		Action: runThread,
	}
}

func runThread(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: ASSERTION_ID")
	}
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := c.Context
	pub := publication.NewClient(rt.api)
	text := c.String("reply")

	var engine *composer.Engine
	if text != "" {
		if err := rt.requireViewer(); err != nil {
			return err
		}
		if engine, err = rt.replyComposer(pub); err != nil {
			return err
		}
		defer engine.Close()
	}

	session := thread.NewSession(c.Args().Get(0), thread.NewHTTPFetcher(rt.api), pub, engine)
	if err := session.Load(ctx); err != nil {
		return err
	}
	if engine != nil && session.Snapshot().Status == thread.StatusReady {
		engine.SetText(text)
		if _, err := session.Reply(ctx, rt.viewer); err != nil {
			return err
		}
	}

	snap := session.Snapshot()
	if snap.Status == thread.StatusNotFound || snap.Thread == nil {
		return fmt.Errorf("thread %s not found", session.RootID())
	}
	return rt.print(snap.Thread, func(w io.Writer) {
		root := snap.Thread.Root
		root.Responses = snap.Thread.Responses
		printItems(w, []models.FeedItem{root}, 0)
		fmt.Fprintf(w, "%d responses\n", snap.Thread.Count)
	})
}

// DeleteCommand returns the delete command
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an assertion you authored",
		ArgsUsage: "ASSERTION_ID",
		Action:    runDelete,
	}
}

func runDelete(c *cli.Context) error {
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

	ctx := c.Context
	id := c.Args().Get(0)
	session := thread.NewSession(id, thread.NewHTTPFetcher(rt.api), publication.NewClient(rt.api), nil)
	if err := session.Load(ctx); err != nil {
		return err
	}
	if session.Snapshot().Status == thread.StatusNotFound {
		return fmt.Errorf("assertion %s not found", id)
	}

	if _, err := session.Delete(ctx, rt.viewer, id); err != nil {
		if apierr.IsConflict(err) {
			return fmt.Errorf("%s: %w", home.ConflictMessage, err)
		}
		return err
	}
	fmt.Fprintf(rt.out, "Deleted %s\n", id)
	return nil
}
