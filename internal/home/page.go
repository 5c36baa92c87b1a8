// Package home composes the home page: the main composer publishes into the
// feed, and delete or revise actions on feed items flow back into the feed
// and the composer.
package home

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/internal/composer"
	"github.com/feedsync/internal/feed"
	"github.com/feedsync/internal/logging"
	"github.com/feedsync/pkg/models"
)

// ConflictMessage is shown when a revise or delete targets an item that
// was already revised or deleted.
const ConflictMessage = "This item was changed or deleted elsewhere. The feed has been refreshed."

// Notifier is the single place user-visible conflict notices go through
type Notifier interface {
	Conflict(targetID, message string)
}

// LogNotifier reports conflicts on the logger
type LogNotifier struct {
	Logger zerolog.Logger
}

// Conflict implements Notifier
func (n LogNotifier) Conflict(targetID, message string) {
	n.Logger.Warn().Str("assertion_id", targetID).Msg(message)
}

// Deleter removes an assertion
type Deleter interface {
	Delete(ctx context.Context, assertionID string) error
}

// Page wires one viewer's feed and main composer together
type Page struct {
	feed     *feed.Session
	composer *composer.Engine
	deleter  Deleter
	notifier Notifier
	logger   zerolog.Logger
	viewer   models.Viewer
}

// NewPage creates a page. A nil notifier logs conflicts.
func NewPage(feedSession *feed.Session, engine *composer.Engine, deleter Deleter, notifier Notifier) *Page {
	logger := logging.Component("home")
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Page{
		feed:     feedSession,
		composer: engine,
		deleter:  deleter,
		notifier: notifier,
		logger:   logger,
	}
}

// Feed returns the page's feed session
func (p *Page) Feed() *feed.Session { return p.feed }

// Composer returns the page's main composer
func (p *Page) Composer() *composer.Engine { return p.composer }

// Viewer returns the active viewer
func (p *Page) Viewer() models.Viewer { return p.viewer }

// SetViewer switches the page to viewer, resetting identity-scoped state and
// hydrating the viewer's draft.
func (p *Page) SetViewer(ctx context.Context, viewer models.Viewer) {
	if viewer.ID != p.feed.Identity() {
		p.feed.Reset(viewer.ID)
	}
	p.viewer = viewer
	p.composer.SetIdentity(ctx, viewer.ID)
}

// Load fetches the first feed page
func (p *Page) Load(ctx context.Context) error {
	return p.feed.Load(ctx)
}

// Publish submits the main composer's draft. On success the pending item
// is inserted into the feed and a superseded original is removed. On
// conflict nothing is applied optimistically; the viewer is notified and
// the feed refreshed.
func (p *Page) Publish(ctx context.Context, opts models.PublishOptions) (models.FeedItem, error) {
	item, err := p.composer.Publish(ctx, p.viewer, opts)
	if err != nil {
		if apierr.IsConflict(err) {
			p.handleConflict(ctx, conflictTarget(err, opts.SupersedesID), err)
		}
		return models.FeedItem{}, err
	}

	if item.ReplyTo != "" {
		p.feed.AddResponse(item.ReplyTo, item)
	} else {
		p.feed.Prepend(item)
	}
	if item.SupersedesID != "" {
		p.feed.RemoveItem(item.SupersedesID)
	}
	return item, nil
}

// Delete removes item after checking the viewer may delete it. The item is
// dropped from the feed at once and the feed refreshed.
func (p *Page) Delete(ctx context.Context, item models.FeedItem) error {
	if !models.CanDelete(p.viewer.ID, authorOf(item), models.RoleFor(p.viewer)) {
		return fmt.Errorf("not allowed to delete %s: %w", item.AssertionID, apierr.ErrUnauthorized)
	}

	if err := p.deleter.Delete(ctx, item.AssertionID); err != nil {
		if apierr.IsConflict(err) {
			p.handleConflict(ctx, item.AssertionID, err)
		}
		return err
	}

	p.feed.RemoveItem(item.AssertionID)
	if err := p.feed.Refresh(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("feed refresh after delete failed")
	}
	return nil
}

// Revise loads item into the composer as a revision of itself
func (p *Page) Revise(ctx context.Context, item models.FeedItem) error {
	if !models.CanEdit(p.viewer.ID, authorOf(item), models.RoleFor(p.viewer)) {
		return fmt.Errorf("not allowed to revise %s: %w", item.AssertionID, apierr.ErrUnauthorized)
	}
	return p.composer.ReplaceDraft(ctx, models.ComposerDraft{
		Title:               item.Title,
		Text:                item.Text,
		Media:               append([]models.MediaItem{}, item.Media...),
		OriginPublicationID: item.AssertionID,
	})
}

func (p *Page) handleConflict(ctx context.Context, targetID string, err error) {
	p.logger.Warn().Err(err).Str("assertion_id", targetID).Msg("conflict, refreshing feed")
	p.notifier.Conflict(targetID, ConflictMessage)
	if err := p.feed.Refresh(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("feed refresh after conflict failed")
	}
}

func conflictTarget(err error, fallback string) string {
	var conflict *apierr.ConflictError
	if errors.As(err, &conflict) && conflict.TargetID != "" {
		return conflict.TargetID
	}
	return fallback
}

func authorOf(item models.FeedItem) string {
	if item.AuthorID != "" {
		return item.AuthorID
	}
	return item.Author.ID
}
