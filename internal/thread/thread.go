// Package thread holds the view of one root assertion and its responses,
// with deletion and reply publishing.
package thread

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/internal/composer"
	"github.com/feedsync/internal/feed"
	"github.com/feedsync/pkg/models"
)

// Status is the lifecycle of a thread view
type Status string

const (
	StatusIdle     Status = "idle"
	StatusLoading  Status = "loading"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
	StatusNotFound Status = "not_found"
)

// Snapshot is the current thread view. Thread is set once a load succeeds
// and kept across failed reloads.
type Snapshot struct {
	Status Status
	Thread *models.Thread
	Err    error
}

// Fetcher retrieves a thread by root id
type Fetcher interface {
	FetchThread(ctx context.Context, rootID string) (models.Thread, error)
}

// Deleter removes an assertion
type Deleter interface {
	Delete(ctx context.Context, assertionID string) error
}

// HTTPFetcher reads GET /thread/:id
type HTTPFetcher struct {
	api *apiclient.Client
}

// NewHTTPFetcher creates a fetcher on the shared transport
func NewHTTPFetcher(api *apiclient.Client) *HTTPFetcher {
	return &HTTPFetcher{api: api}
}

// FetchThread implements Fetcher
func (f *HTTPFetcher) FetchThread(ctx context.Context, rootID string) (models.Thread, error) {
	var t models.Thread
	if _, err := f.api.Get(ctx, "thread fetch", "/thread/"+url.PathEscape(rootID), nil, &t); err != nil {
		return models.Thread{}, err
	}
	if t.Responses == nil {
		t.Responses = []models.FeedItem{}
	}
	return t, nil
}

// DeleteOutcome tells the caller what happened to the view after a delete
type DeleteOutcome int

const (
	// Reloaded means a response was deleted and the thread was refetched
	Reloaded DeleteOutcome = iota
	// RootDeleted means the whole thread is gone; the caller should leave it
	RootDeleted
)

// Session is the view of one thread
type Session struct {
	rootID  string
	fetcher Fetcher
	deleter Deleter
	reply   *composer.Engine

	mu         sync.Mutex
	snap       Snapshot
	generation uint64
}

// NewSession creates a thread view. reply is the composer used for
// responses; it may be nil when replying is not offered.
func NewSession(rootID string, fetcher Fetcher, deleter Deleter, reply *composer.Engine) *Session {
	return &Session{
		rootID:  rootID,
		fetcher: fetcher,
		deleter: deleter,
		reply:   reply,
		snap:    Snapshot{Status: StatusIdle},
	}
}

// RootID returns the id of the thread's root assertion
func (s *Session) RootID() string { return s.rootID }

// Snapshot returns the current view
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Load fetches the thread. A 404 moves the view to not found rather than
// error.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.snap.Status = StatusLoading
	s.snap.Err = nil
	s.mu.Unlock()

	t, err := s.fetcher.FetchThread(ctx, s.rootID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return nil
	}
	switch {
	case errors.Is(err, apierr.ErrNotFound):
		s.snap = Snapshot{Status: StatusNotFound}
		return nil
	case err != nil:
		s.snap.Status = StatusError
		s.snap.Err = fmt.Errorf("failed to load thread: %w", err)
		return s.snap.Err
	}
	s.snap = Snapshot{Status: StatusReady, Thread: &t}
	return nil
}

// Delete removes assertionID if viewer may delete it. Deleting the root
// ends the thread; deleting a response reloads it. On conflict the thread
// is reloaded and the conflict returned.
func (s *Session) Delete(ctx context.Context, viewer models.Viewer, assertionID string) (DeleteOutcome, error) {
	s.mu.Lock()
	target, found := s.find(assertionID)
	s.mu.Unlock()
	if !found {
		return Reloaded, fmt.Errorf("assertion %s is not in this thread: %w", assertionID, apierr.ErrNotFound)
	}
	author := target.AuthorID
	if author == "" {
		author = target.Author.ID
	}
	if !models.CanDelete(viewer.ID, author, models.RoleFor(viewer)) {
		return Reloaded, fmt.Errorf("not allowed to delete %s: %w", assertionID, apierr.ErrUnauthorized)
	}

	if err := s.deleter.Delete(ctx, assertionID); err != nil {
		if apierr.IsConflict(err) {
			log.Warn().Err(err).Str("assertion_id", assertionID).Msg("delete conflicted, reloading thread")
			if loadErr := s.Load(ctx); loadErr != nil {
				log.Warn().Err(loadErr).Msg("thread reload after conflict failed")
			}
		}
		return Reloaded, err
	}

	if assertionID == s.rootID {
		s.mu.Lock()
		s.generation++
		s.snap = Snapshot{Status: StatusNotFound}
		s.mu.Unlock()
		return RootDeleted, nil
	}
	return Reloaded, s.Load(ctx)
}

// Reply publishes the reply composer's draft as a response to the root.
// The response is shown immediately and confirmed by a reload.
func (s *Session) Reply(ctx context.Context, viewer models.Viewer) (models.FeedItem, error) {
	if s.reply == nil {
		return models.FeedItem{}, errors.New("thread has no reply composer")
	}
	item, err := s.reply.Publish(ctx, viewer, models.PublishOptions{ReplyTo: s.rootID})
	if err != nil {
		return models.FeedItem{}, err
	}

	s.mu.Lock()
	if s.snap.Thread != nil {
		if _, dup := s.find(item.AssertionID); !dup {
			t := *s.snap.Thread
			t.Responses = append(append(make([]models.FeedItem, 0, len(t.Responses)+1), t.Responses...), item)
			t.Count++
			s.snap.Thread = &t
		}
	}
	s.mu.Unlock()

	if err := s.Load(ctx); err != nil {
		log.Warn().Err(err).Str("root_id", s.rootID).Msg("thread reload after reply failed")
	}
	return item, nil
}

// find locates an assertion at any depth of the loaded thread. Must be
// called with s.mu held.
func (s *Session) find(id string) (models.FeedItem, bool) {
	if s.snap.Thread == nil {
		return models.FeedItem{}, false
	}
	t := s.snap.Thread
	if t.Root.AssertionID == id {
		return t.Root, true
	}
	if found, ok := feed.Find(t.Root.Responses, id); ok {
		return found, true
	}
	return feed.Find(t.Responses, id)
}
