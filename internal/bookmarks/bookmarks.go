// Package bookmarks tracks the viewer's private bookmark edge for one
// assertion. Toggles flip the local value immediately and send the mutation
// in the background; a failed mutation restores the previous value.
package bookmarks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/internal/optimistic"
	"github.com/feedsync/pkg/models"
)

// Gateway is the bookmarks endpoint
type Gateway interface {
	Fetch(ctx context.Context, assertionID string) (bool, error)
	Add(ctx context.Context, assertionID string) error
	Remove(ctx context.Context, assertionID string) error
}

// HTTPGateway talks to /bookmarks
type HTTPGateway struct {
	api *apiclient.Client
}

// NewHTTPGateway creates the HTTP bookmarks gateway
func NewHTTPGateway(api *apiclient.Client) *HTTPGateway {
	return &HTTPGateway{api: api}
}

type mutationBody struct {
	AssertionID string `json:"assertionId"`
}

// Fetch returns whether the viewer has bookmarked assertionID
func (g *HTTPGateway) Fetch(ctx context.Context, assertionID string) (bool, error) {
	var state models.BookmarkState
	if _, err := g.api.Get(ctx, "bookmark fetch", "/bookmarks/"+url.PathEscape(assertionID), nil, &state); err != nil {
		return false, err
	}
	return state.IsBookmarked, nil
}

// Add bookmarks assertionID
func (g *HTTPGateway) Add(ctx context.Context, assertionID string) error {
	return g.mutate(ctx, http.MethodPost, assertionID)
}

// Remove drops the bookmark on assertionID
func (g *HTTPGateway) Remove(ctx context.Context, assertionID string) error {
	return g.mutate(ctx, http.MethodDelete, assertionID)
}

func (g *HTTPGateway) mutate(ctx context.Context, method, assertionID string) error {
	_, err := g.api.Do(ctx, apiclient.Request{
		Op:     "bookmark " + method,
		Method: method,
		Path:   "/bookmarks",
		Body:   mutationBody{AssertionID: assertionID},
	}, nil)
	return err
}

// View is what a caller renders
type View struct {
	IsBookmarked bool
	Loading      bool
	Pending      bool
	Err          error
}

// Tracker holds the bookmark state of one assertion for one viewer
type Tracker struct {
	assertionID   string
	gateway       Gateway
	authenticated bool
	cell          *optimistic.Cell[bool]
	wg            sync.WaitGroup

	mu      sync.Mutex
	loading bool
	err     error
}

// NewTracker creates a tracker. Guests always see false and cannot toggle.
func NewTracker(gateway Gateway, assertionID string, viewer models.Viewer) *Tracker {
	return &Tracker{
		assertionID:   assertionID,
		gateway:       gateway,
		authenticated: viewer.Authenticated(),
		cell:          optimistic.NewCell(false),
	}
}

// Load fetches the stored bookmark state
func (t *Tracker) Load(ctx context.Context) error {
	if !t.authenticated {
		return nil
	}

	t.mu.Lock()
	t.loading = true
	t.mu.Unlock()

	bookmarked, err := t.gateway.Fetch(ctx, t.assertionID)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		t.err = fmt.Errorf("failed to load bookmark: %w", err)
		return t.err
	}
	t.err = nil
	t.cell.Set(bookmarked)
	return nil
}

// Toggle flips the bookmark and reports whether a mutation was started. It
// does nothing for guests or while a previous toggle is in flight.
func (t *Tracker) Toggle(ctx context.Context) bool {
	if !t.authenticated {
		return false
	}

	proposal, err := t.cell.Propose(func(v bool) bool { return !v })
	if err != nil {
		return false
	}

	t.mu.Lock()
	t.err = nil
	t.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		var err error
		if proposal.Before() {
			err = t.gateway.Remove(ctx, t.assertionID)
		} else {
			err = t.gateway.Add(ctx, t.assertionID)
		}
		if err != nil {
			log.Warn().Err(err).Str("assertion_id", t.assertionID).Msg("bookmark toggle failed, reverting")
			proposal.Revert()
			t.mu.Lock()
			t.err = fmt.Errorf("failed to toggle bookmark: %w", err)
			t.mu.Unlock()
			return
		}
		proposal.Confirm()
	}()
	return true
}

// Wait blocks until background mutations finish and returns the last error
func (t *Tracker) Wait() error {
	t.wg.Wait()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// View returns the current state
func (t *Tracker) View() View {
	if !t.authenticated {
		return View{}
	}
	bookmarked, pending := t.cell.Get()
	t.mu.Lock()
	defer t.mu.Unlock()
	return View{IsBookmarked: bookmarked, Loading: t.loading, Pending: pending, Err: t.err}
}
