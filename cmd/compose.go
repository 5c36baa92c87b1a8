package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/internal/composer"
	"github.com/feedsync/internal/feed"
	"github.com/feedsync/internal/home"
	"github.com/feedsync/internal/publication"
	"github.com/feedsync/internal/thread"
	"github.com/feedsync/pkg/models"
)

// ComposeCommand returns the compose command
func ComposeCommand() *cli.Command {
	contentFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "text",
			Aliases: []string{"t"},
			Usage:   "Post text",
		},
		&cli.StringFlag{
			Name:  "title",
			Usage: "Article title; a titled post is published as an article",
		},
		&cli.StringSliceFlag{
			Name:    "media",
			Aliases: []string{"m"},
			Usage:   "Attach media as `KIND:SRC` (image or link), repeatable",
		},
	}

	return &cli.Command{
		Name:  "compose",
		Usage: "Write, save and publish posts",
		Subcommands: []*cli.Command{
			{
				Name:  "publish",
				Usage: "Publish the draft, or the given content",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "reply-to",
						Usage: "Publish as a response to `ASSERTION_ID`",
					},
					&cli.StringFlag{
						Name:  "revise",
						Usage: "Publish as a revision of `ASSERTION_ID`",
					},
					&cli.BoolFlag{
						Name:  "keep-draft",
						Usage: "Keep the stored draft after publishing",
					},
				}, contentFlags...),
				Action: runComposePublish,
			},
			{
				Name:   "draft",
				Usage:  "Show the stored draft, or update it with the given content",
				Flags:  contentFlags,
				Action: runComposeDraft,
			},
			{
				Name:   "clear",
				Usage:  "Discard the stored draft",
				Action: runComposeClear,
			},
		},
	}
}

// applyContent copies content flags into the composer
func applyContent(c *cli.Context, engine *composer.Engine) error {
	if c.IsSet("title") {
		engine.SetTitle(c.String("title"))
	}
	if c.IsSet("text") {
		engine.SetText(c.String("text"))
	}
	for _, spec := range c.StringSlice("media") {
		kind, src, ok := strings.Cut(spec, ":")
		if !ok {
			return apierr.Validation(fmt.Sprintf("media must be KIND:SRC, got %q", spec))
		}
		if _, err := engine.AddMedia(models.MediaType(kind), src); err != nil {
			return err
		}
	}
	return nil
}

func runComposePublish(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.requireViewer(); err != nil {
		return err
	}

	ctx := c.Context
	pub := publication.NewClient(rt.api)
	engine, err := rt.composer(ctx, pub)
	if err != nil {
		return err
	}
	defer engine.Close()

	session := feed.NewSession(feed.NewHTTPFetcher(rt.api), rt.viewer.ID)
	defer session.Close()
	page := home.NewPage(session, engine, pub, nil)
	page.SetViewer(ctx, rt.viewer)

	if id := c.String("revise"); id != "" {
		t, err := thread.NewHTTPFetcher(rt.api).FetchThread(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", id, err)
		}
		if err := page.Revise(ctx, t.Root); err != nil {
			return err
		}
	}
	if err := applyContent(c, engine); err != nil {
		return err
	}

	item, err := page.Publish(ctx, models.PublishOptions{
		ReplyTo:    c.String("reply-to"),
		ClearDraft: !c.Bool("keep-draft"),
	})
	if err != nil {
		if apierr.IsConflict(err) {
			return fmt.Errorf("%s: %w", home.ConflictMessage, err)
		}
		return err
	}
	return rt.print(item, func(w io.Writer) {
		fmt.Fprintf(w, "Published %s (%s)\n", item.AssertionID, item.AssertionType)
		if item.SupersedesID != "" {
			fmt.Fprintf(w, "Supersedes %s\n", item.SupersedesID)
		}
	})
}

type draftView struct {
	Draft  models.ComposerDraft `json:"draft" yaml:"draft"`
	Banner composer.Banner      `json:"banner" yaml:"banner"`
	Save   composer.SaveStatus  `json:"save" yaml:"save"`
}

func runComposeDraft(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.requireViewer(); err != nil {
		return err
	}

	ctx := c.Context
	engine, err := rt.composer(ctx, publication.NewClient(rt.api))
	if err != nil {
		return err
	}
	defer engine.Close()

	if c.IsSet("text") || c.IsSet("title") || c.IsSet("media") {
		if err := applyContent(c, engine); err != nil {
			return err
		}
		engine.Save(ctx)
		if st := engine.State(); st.Save == composer.SaveError {
			return fmt.Errorf("failed to save draft")
		}
	}

	st := engine.State()
	view := draftView{Draft: st.Draft, Banner: engine.Banner(), Save: st.Save}
	return rt.print(view, func(w io.Writer) {
		if !st.Draft.HasContent() {
			fmt.Fprintln(w, "No draft")
			return
		}
		if st.Draft.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", st.Draft.Title)
		}
		fmt.Fprintln(w, st.Draft.Text)
		for _, m := range st.Draft.Media {
			fmt.Fprintf(w, "  [%s] %s (%s)\n", m.Type, m.Src, m.ID)
		}
		if st.Draft.OriginPublicationID != "" {
			fmt.Fprintf(w, "Revising %s\n", st.Draft.OriginPublicationID)
		}
	})
}

func runComposeClear(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.requireViewer(); err != nil {
		return err
	}

	engine, err := rt.composer(c.Context, publication.NewClient(rt.api))
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.Clear(c.Context)
	fmt.Fprintln(rt.out, "Draft cleared")
	return nil
}
