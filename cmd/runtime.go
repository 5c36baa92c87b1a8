package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/internal/composer"
	"github.com/feedsync/internal/config"
	"github.com/feedsync/internal/drafts"
	"github.com/feedsync/internal/identity"
	"github.com/feedsync/internal/localstate"
	"github.com/feedsync/pkg/models"
)

// Output formats accepted by --format
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// runtime is the per-invocation wiring shared by the client commands
type runtime struct {
	cfg    *config.Config
	api    *apiclient.Client
	viewer models.Viewer
	state  *localstate.Store
	out    io.Writer
	format string
}

// newRuntime loads configuration and builds the API client for the
// configured session token.
func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	viewer, err := identity.FromToken(cfg.API.Token)
	if err != nil {
		return nil, err
	}

	api, err := apiclient.New(apiclient.Options{
		BaseURL:   cfg.API.BaseURL,
		Token:     cfg.API.Token,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		Burst:     cfg.API.Burst,
		Retry:     cfg.Retry,
		UserAgent: "feedsync/" + c.App.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	format := strings.ToLower(c.String("format"))
	switch format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}

	return &runtime{
		cfg:    cfg,
		api:    api,
		viewer: viewer,
		out:    writerOrStdout(c.App.Writer),
		format: format,
	}, nil
}

func (r *runtime) Close() {
	if r.state != nil {
		r.state.Close()
	}
}

func (r *runtime) requireViewer() error {
	if !r.viewer.Authenticated() {
		return fmt.Errorf("this command needs a session token (set api.token or FEEDSYNC_API__TOKEN)")
	}
	return nil
}

// localState opens the installation database on first use
func (r *runtime) localState() (*localstate.Store, error) {
	if r.state != nil {
		return r.state, nil
	}
	state, err := localstate.Open(r.cfg.State.Path)
	if err != nil {
		return nil, err
	}
	r.state = state
	return state, nil
}

// draftStore returns the configured draft persistence
func (r *runtime) draftStore() (drafts.Store, error) {
	state, err := r.localState()
	if err != nil {
		return nil, err
	}
	if r.cfg.Drafts.Store == config.DraftStoreLocal {
		return drafts.NewLocalStore(state), nil
	}
	return drafts.NewRemoteStore(r.api, state), nil
}

// composer builds an engine hydrated with the viewer's stored draft
func (r *runtime) composer(ctx context.Context, publisher composer.Publisher) (*composer.Engine, error) {
	store, err := r.draftStore()
	if err != nil {
		return nil, err
	}
	engine := composer.NewEngine(store, publisher, composer.Options{AutosaveDelay: r.cfg.Composer.AutosaveDelay})
	engine.SetIdentity(ctx, r.viewer.ID)
	return engine, nil
}

// replyComposer builds an engine for a one-off response. It is not bound
// to an identity, so it neither restores nor overwrites the stored draft.
func (r *runtime) replyComposer(publisher composer.Publisher) (*composer.Engine, error) {
	store, err := r.draftStore()
	if err != nil {
		return nil, err
	}
	return composer.NewEngine(store, publisher, composer.Options{AutosaveDelay: r.cfg.Composer.AutosaveDelay}), nil
}

// print renders v in the selected format. text is used for FormatText.
func (r *runtime) print(v interface{}, text func(w io.Writer)) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	text(r.out)
	return nil
}

func writerOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

// printItems writes a feed tree, one line per item
func printItems(w io.Writer, items []models.FeedItem, depth int) {
	for _, it := range items {
		pending := ""
		if it.IsPending {
			pending = " (pending)"
		}
		author := it.Author.DisplayName
		if author == "" {
			author = it.AuthorID
		}
		text := it.Text
		if it.Title != "" {
			text = it.Title + ": " + text
		}
		likes := 0
		if it.ReactionCounts != nil {
			likes = it.ReactionCounts.Like
		}
		fmt.Fprintf(w, "%s%s  %-12s %s%s  [%d likes, %d replies]\n",
			strings.Repeat("  ", depth), it.AssertionID, author, oneLine(text), pending, likes, it.ResponseCount)
		printItems(w, it.Responses, depth+1)
	}
}

// oneLine collapses whitespace and truncates to 72 runes
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > 72 {
		return string([]rune(s)[:69]) + "..."
	}
	return s
}
