// Package reactions keeps a viewer's reaction state for one assertion in
// sync with the backend. Counts are aggregate and therefore never guessed:
// a toggle shows only a pending marker and always refetches afterwards.
package reactions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/internal/optimistic"
	"github.com/feedsync/pkg/models"
)

// Gateway is the reactions endpoint
type Gateway interface {
	Fetch(ctx context.Context, assertionID string) (models.ReactionsState, error)
	Add(ctx context.Context, assertionID string, t models.ReactionType) (models.ReactionMutation, error)
	Remove(ctx context.Context, assertionID string, t models.ReactionType) (models.ReactionMutation, error)
}

// HTTPGateway talks to /reactions
type HTTPGateway struct {
	api *apiclient.Client
}

// NewHTTPGateway creates the HTTP reactions gateway
func NewHTTPGateway(api *apiclient.Client) *HTTPGateway {
	return &HTTPGateway{api: api}
}

type mutationBody struct {
	AssertionID  string              `json:"assertionId"`
	ReactionType models.ReactionType `json:"reactionType"`
}

// Fetch returns the authoritative counts and the viewer's reactions
func (g *HTTPGateway) Fetch(ctx context.Context, assertionID string) (models.ReactionsState, error) {
	var state models.ReactionsState
	if _, err := g.api.Get(ctx, "reactions fetch", "/reactions/"+url.PathEscape(assertionID), nil, &state); err != nil {
		return models.ReactionsState{}, err
	}
	if state.UserReactions == nil {
		state.UserReactions = []models.ReactionType{}
	}
	return state, nil
}

// Add records a reaction; repeating it is harmless
func (g *HTTPGateway) Add(ctx context.Context, assertionID string, t models.ReactionType) (models.ReactionMutation, error) {
	return g.mutate(ctx, http.MethodPost, assertionID, t)
}

// Remove withdraws a reaction
func (g *HTTPGateway) Remove(ctx context.Context, assertionID string, t models.ReactionType) (models.ReactionMutation, error) {
	return g.mutate(ctx, http.MethodDelete, assertionID, t)
}

func (g *HTTPGateway) mutate(ctx context.Context, method, assertionID string, t models.ReactionType) (models.ReactionMutation, error) {
	var out models.ReactionMutation
	_, err := g.api.Do(ctx, apiclient.Request{
		Op:     "reaction " + method,
		Method: method,
		Path:   "/reactions",
		Body:   mutationBody{AssertionID: assertionID, ReactionType: t},
	}, &out)
	return out, err
}

// View is what a caller renders for one assertion
type View struct {
	Counts        models.ReactionCounts
	UserReactions []models.ReactionType
	Loading       bool
	Mutating      bool
	Err           error
}

// Tracker holds reaction state for a single assertion
type Tracker struct {
	assertionID string
	gateway     Gateway
	cell        *optimistic.Cell[models.ReactionsState]

	mu      sync.Mutex
	loading bool
	err     error
}

// NewTracker creates a tracker. initial, when non-nil, is the count already
// carried by the feed projection and avoids showing a loading state.
func NewTracker(gateway Gateway, assertionID string, initial *models.ReactionCounts) *Tracker {
	state := models.ReactionsState{UserReactions: []models.ReactionType{}}
	if initial != nil {
		state.Counts = *initial
	}
	return &Tracker{
		assertionID: assertionID,
		gateway:     gateway,
		cell:        optimistic.NewCell(state),
		loading:     initial == nil,
	}
}

// Load fetches the authoritative state
func (t *Tracker) Load(ctx context.Context) error {
	state, err := t.gateway.Fetch(ctx, t.assertionID)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		t.err = fmt.Errorf("failed to load reactions: %w", err)
		return t.err
	}
	t.err = nil
	t.cell.Set(state)
	return nil
}

// Toggle adds the reaction if the viewer has not made it and removes it
// otherwise, then refetches regardless of the outcome. A toggle while
// another is in flight is ignored.
func (t *Tracker) Toggle(ctx context.Context, rt models.ReactionType) error {
	if !rt.Valid() {
		return apierr.Validation(fmt.Sprintf("unknown reaction type %q", rt))
	}

	t.mu.Lock()
	t.err = nil
	t.mu.Unlock()

	err := optimistic.Run(ctx, t.cell, optimistic.Plan[models.ReactionsState]{
		Mutate: func(ctx context.Context, before models.ReactionsState) error {
			var err error
			if before.Has(rt) {
				_, err = t.gateway.Remove(ctx, t.assertionID, rt)
			} else {
				_, err = t.gateway.Add(ctx, t.assertionID, rt)
			}
			return err
		},
		Resync: func(ctx context.Context) (models.ReactionsState, error) {
			return t.gateway.Fetch(ctx, t.assertionID)
		},
	})
	if errors.Is(err, optimistic.ErrPending) {
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Str("assertion_id", t.assertionID).Str("reaction", string(rt)).Msg("reaction toggle failed")
		t.mu.Lock()
		t.err = fmt.Errorf("failed to toggle reaction: %w", err)
		t.mu.Unlock()
		return err
	}
	return nil
}

// View returns the current state
func (t *Tracker) View() View {
	state, pending := t.cell.Get()
	t.mu.Lock()
	defer t.mu.Unlock()
	return View{
		Counts:        state.Counts,
		UserReactions: append([]models.ReactionType{}, state.UserReactions...),
		Loading:       t.loading,
		Mutating:      pending,
		Err:           t.err,
	}
}
