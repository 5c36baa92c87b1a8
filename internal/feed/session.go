// Package feed holds the paginated home feed for one viewer. Snapshots only
// change through the pure transitions in transitions.go; the Session adds
// fetching, a generation token that discards stale responses, and
// cancellation scoped to the session's identity.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/pkg/models"
)

// ErrClosed is returned by fetches on a closed session
var ErrClosed = errors.New("feed session closed")

// Fetcher retrieves one page of the feed. An empty cursor means the first page.
type Fetcher interface {
	Fetch(ctx context.Context, cursor string) (models.FeedPage, error)
}

// HTTPFetcher reads GET /feed
type HTTPFetcher struct {
	api *apiclient.Client
}

// NewHTTPFetcher creates a fetcher on the shared transport
func NewHTTPFetcher(api *apiclient.Client) *HTTPFetcher {
	return &HTTPFetcher{api: api}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, cursor string) (models.FeedPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	var page models.FeedPage
	if _, err := f.api.Get(ctx, "feed fetch", "/feed", query, &page); err != nil {
		return models.FeedPage{}, err
	}
	return page, nil
}

// Session is the feed state for one identity
type Session struct {
	fetcher Fetcher
	logger  zerolog.Logger

	mu         sync.Mutex
	snap       models.FeedSnapshot
	identity   string
	generation uint64
	inFlight   int // fetches started in the current generation
	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool
}

// NewSession creates an idle session for identity
func NewSession(fetcher Fetcher, identity string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		fetcher:  fetcher,
		logger:   log.With().Str("component", "feed").Logger(),
		snap:     models.IdleSnapshot(),
		identity: identity,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Snapshot returns the current state
func (s *Session) Snapshot() models.FeedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Identity returns the identity the session currently belongs to
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Load fetches the first page. It supersedes any fetch already in flight:
// their responses are discarded when they arrive.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.generation++
	gen := s.generation
	s.inFlight = 1
	s.snap = BeginLoad(s.snap, false)
	identity := s.identity
	fetchCtx, stop := s.fetchContext(ctx)
	s.mu.Unlock()
	defer stop()

	s.logger.Debug().Str("identity", identity).Uint64("generation", gen).Msg("loading feed")
	page, err := s.fetcher.Fetch(fetchCtx, "")
	return s.apply(gen, page, err, false)
}

// Refresh reloads the first page so local optimistic edits are replaced by
// the authoritative order.
func (s *Session) Refresh(ctx context.Context) error {
	return s.Load(ctx)
}

// LoadMore fetches the next page and appends it. It does nothing when there
// are no more pages or when any fetch is already in flight.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.snap.NextCursor == "" || s.inFlight > 0 {
		s.mu.Unlock()
		return nil
	}
	cursor := s.snap.NextCursor
	gen := s.generation
	s.inFlight++
	s.snap = BeginLoad(s.snap, true)
	fetchCtx, stop := s.fetchContext(ctx)
	s.mu.Unlock()
	defer stop()

	s.logger.Debug().Str("cursor", cursor).Uint64("generation", gen).Msg("loading next feed page")
	page, err := s.fetcher.Fetch(fetchCtx, cursor)
	return s.apply(gen, page, err, true)
}

// apply installs a fetch result if gen is still current. Stale results are
// dropped without error.
func (s *Session) apply(gen uint64, page models.FeedPage, err error, appending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.generation {
		s.logger.Debug().Uint64("generation", gen).Uint64("current", s.generation).Msg("discarding stale feed response")
		return nil
	}
	s.inFlight--

	if err != nil {
		s.logger.Warn().Err(err).Bool("appending", appending).Msg("feed fetch failed")
		err = fmt.Errorf("failed to load feed: %w", err)
		s.snap = ApplyError(s.snap, err)
		return err
	}
	s.snap = ApplyPage(s.snap, page, appending)
	return nil
}

// fetchContext derives a context that is cancelled with either ctx or the
// session. Must be called with s.mu held.
func (s *Session) fetchContext(ctx context.Context) (context.Context, func()) {
	fetchCtx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(s.ctx, cancel)
	return fetchCtx, func() {
		stopAfter()
		cancel()
	}
}

// Prepend inserts an item at the head of the feed. It reports false when the
// id is already present.
func (s *Session) Prepend(item models.FeedItem) bool {
	return s.edit(func(snap models.FeedSnapshot) models.FeedSnapshot { return Prepend(snap, item) })
}

// AddResponse attaches item under parentID. It reports false when the
// parent is not loaded or the item is already present.
func (s *Session) AddResponse(parentID string, item models.FeedItem) bool {
	return s.edit(func(snap models.FeedSnapshot) models.FeedSnapshot { return AddResponse(snap, parentID, item) })
}

// RemoveItem drops an item ahead of the refresh that confirms its removal
func (s *Session) RemoveItem(id string) bool {
	return s.edit(func(snap models.FeedSnapshot) models.FeedSnapshot { return Remove(snap, id) })
}

func (s *Session) edit(fn func(models.FeedSnapshot) models.FeedSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	before := s.snap.Items
	s.snap = fn(s.snap)
	return !sameSlice(before, s.snap.Items)
}

// Reset switches the session to identity: in-flight fetches are cancelled,
// their responses discarded, and the feed returns to idle.
func (s *Session) Reset(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.generation++
	s.inFlight = 0
	s.identity = identity
	s.snap = models.IdleSnapshot()
}

// Close cancels in-flight fetches. The session rejects further loads.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.inFlight = 0
	s.cancel()
}

func sameSlice(a, b []models.FeedItem) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}
