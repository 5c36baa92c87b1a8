// Package watch polls the feed and notifications on a cron schedule and
// reports what is new since the previous poll.
package watch

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/feedsync/internal/feed"
	"github.com/feedsync/internal/logging"
	"github.com/feedsync/internal/notifications"
	"github.com/feedsync/pkg/models"
)

// Update is what one poll found
type Update struct {
	NewItems    []models.FeedItem `json:"newItems" yaml:"newItems"`
	UnreadCount int               `json:"unreadCount" yaml:"unreadCount"`
}

// Empty reports whether the poll found nothing worth reporting
func (u Update) Empty() bool {
	return len(u.NewItems) == 0
}

// Watcher remembers which feed items it has reported
type Watcher struct {
	feed   *feed.Session
	center *notifications.Center
	logger zerolog.Logger

	mu     sync.Mutex
	seen   map[string]bool
	primed bool
}

// New creates a watcher. center may be nil for guests.
func New(session *feed.Session, center *notifications.Center) *Watcher {
	return &Watcher{
		feed:   session,
		center: center,
		logger: logging.Component("watch"),
		seen:   map[string]bool{},
	}
}

// Poll refreshes the feed and unread count. The first poll only records
// what is already there. Items are reported once, including responses.
func (w *Watcher) Poll(ctx context.Context) (Update, error) {
	if err := w.feed.Refresh(ctx); err != nil {
		return Update{}, fmt.Errorf("failed to refresh feed: %w", err)
	}
	unread := 0
	if w.center != nil {
		if err := w.center.Refresh(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("notification refresh failed")
		}
		unread = w.center.View().UnreadCount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var fresh []models.FeedItem
	var visit func(items []models.FeedItem)
	visit = func(items []models.FeedItem) {
		for _, it := range items {
			if !w.seen[it.AssertionID] {
				w.seen[it.AssertionID] = true
				if w.primed {
					leaf := it
					leaf.Responses = nil
					fresh = append(fresh, leaf)
				}
			}
			visit(it.Responses)
		}
	}
	visit(w.feed.Snapshot().Items)
	w.primed = true

	return Update{NewItems: fresh, UnreadCount: unread}, nil
}

// Run polls on schedule until ctx is done, passing every non-empty update
// to report. It polls once immediately to record what is already there.
func (w *Watcher) Run(ctx context.Context, schedule string, report func(Update)) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		update, err := w.Poll(ctx)
		if err != nil {
			w.logger.Warn().Err(err).Msg("poll failed")
			return
		}
		if !update.Empty() {
			report(update)
		}
	}); err != nil {
		return fmt.Errorf("invalid watch schedule %q: %w", schedule, err)
	}

	if _, err := w.Poll(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("initial poll failed")
	}

	w.logger.Info().Str("schedule", schedule).Msg("watching feed")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
