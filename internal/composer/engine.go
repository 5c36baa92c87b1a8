// Package composer owns the draft-editing state machine. Reduce is the pure
// transition function; Engine runs the side effects around it: hydrating the
// draft once per identity, debounced autosave and publishing.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/internal/drafts"
	"github.com/feedsync/internal/publication"
	"github.com/feedsync/pkg/models"
)

// DefaultAutosaveDelay is how long the draft must stay unchanged before it
// is saved.
const DefaultAutosaveDelay = time.Second

// ErrPublishInProgress is returned by Publish while a publish is running
var ErrPublishInProgress = errors.New("publish already in progress")

// Publisher submits finished content
type Publisher interface {
	Publish(ctx context.Context, content models.Content, req publication.Request) (models.PublishReceipt, error)
}

// Options tunes an Engine
type Options struct {
	AutosaveDelay time.Duration
	Now           func() time.Time
}

// session is the per-identity side-effect state. It is replaced wholesale
// when the identity changes so nothing leaks from one viewer to the next.
type session struct {
	identity string
	loaded   bool
	timer    *time.Timer
	rev      uint64 // bumped on every draft change
	ctx      context.Context
	cancel   context.CancelFunc

	// writes orders store calls so a late save cannot land after a clear
	writes sync.Mutex
}

func newSession(identity string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{identity: identity, ctx: ctx, cancel: cancel}
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *session) close() {
	s.stopTimer()
	s.cancel()
}

// Engine is one composing context, e.g. the main composer or a reply box
type Engine struct {
	store     drafts.Store
	publisher Publisher
	delay     time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	mu    sync.Mutex
	state State
	sess  *session
}

// NewEngine creates an engine with no identity
func NewEngine(store drafts.Store, publisher Publisher, opts Options) *Engine {
	delay := opts.AutosaveDelay
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:     store,
		publisher: publisher,
		delay:     delay,
		now:       now,
		logger:    log.With().Str("component", "composer").Logger(),
		state:     InitialState(),
		sess:      newSession(""),
	}
}

// State returns a copy of the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	s.Draft = s.Draft.Clone()
	return s
}

// Banner returns the notice to show above the composer
func (e *Engine) Banner() Banner {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Banner()
}

// Identity returns the active identity
func (e *Engine) Identity() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.identity
}

// SetIdentity makes identity the active viewer. Switching identity resets
// the composer; the stored draft is hydrated exactly once per identity.
func (e *Engine) SetIdentity(ctx context.Context, identity string) {
	e.mu.Lock()
	sess := e.sess
	if sess.identity != identity {
		sess.close()
		sess = newSession(identity)
		e.sess = sess
		e.state = InitialState()
	}
	if identity == "" || sess.loaded {
		e.mu.Unlock()
		return
	}
	sess.loaded = true
	e.mu.Unlock()

	draft := e.store.Load(ctx, identity)
	if draft == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != sess {
		return
	}
	if e.state.Phase != PhaseIdle || e.state.Draft.HasContent() {
		e.logger.Debug().Str("identity", identity).Msg("composer already in use, not restoring stored draft")
		return
	}
	e.state = Reduce(e.state, LoadDraft{Draft: *draft, HasContent: draft.HasContent()})
	e.logger.Debug().Str("identity", identity).Bool("restored", e.state.Restored).Msg("draft hydrated")
}

// SetTitle sets the article title
func (e *Engine) SetTitle(title string) {
	e.dispatchEdit(SetTitle{Title: title})
}

// SetText sets the body text
func (e *Engine) SetText(text string) {
	e.dispatchEdit(SetText{Text: text})
}

// AddMedia attaches an image or link and returns its generated id
func (e *Engine) AddMedia(kind models.MediaType, src string) (string, error) {
	if kind != models.MediaImage && kind != models.MediaLink {
		return "", apierr.Validation(fmt.Sprintf("unsupported media type %q", kind))
	}
	if strings.TrimSpace(src) == "" {
		return "", apierr.Validation("media source is required")
	}
	id := ulid.Make().String()
	if !e.dispatchEdit(AddMedia{Item: models.MediaItem{ID: id, Type: kind, Src: src}}) {
		return "", ErrPublishInProgress
	}
	return id, nil
}

// RemoveMedia detaches the attachment with id
func (e *Engine) RemoveMedia(id string) {
	e.dispatchEdit(RemoveMedia{ID: id})
}

// dispatchEdit applies an edit and restarts the autosave timer. It reports
// false when the edit was ignored because a publish is running.
func (e *Engine) dispatchEdit(a Action) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Phase == PhasePublishing {
		return false
	}
	e.state = Reduce(e.state, a)
	e.sess.rev++
	e.scheduleSaveLocked()
	return true
}

// scheduleSaveLocked restarts the debounce. Must be called with e.mu held.
func (e *Engine) scheduleSaveLocked() {
	sess := e.sess
	sess.stopTimer()
	if sess.identity == "" {
		return
	}
	sess.timer = time.AfterFunc(e.delay, func() {
		e.save(sess.ctx, sess)
	})
}

// ReplaceDraft swaps in a whole draft, e.g. to revise a published item, and
// saves it immediately.
func (e *Engine) ReplaceDraft(ctx context.Context, draft models.ComposerDraft) error {
	e.mu.Lock()
	if e.state.Phase == PhasePublishing {
		e.mu.Unlock()
		return ErrPublishInProgress
	}
	e.state = Reduce(e.state, ReplaceDraft{Draft: draft})
	e.sess.rev++
	e.sess.stopTimer()
	sess := e.sess
	e.mu.Unlock()

	e.save(ctx, sess)
	return nil
}

// Save persists the current draft now, cancelling any pending autosave.
// The outcome is reflected in State().Save.
func (e *Engine) Save(ctx context.Context) {
	e.mu.Lock()
	e.sess.stopTimer()
	sess := e.sess
	e.mu.Unlock()

	e.save(ctx, sess)
}

func (e *Engine) save(ctx context.Context, sess *session) {
	sess.writes.Lock()
	defer sess.writes.Unlock()

	e.mu.Lock()
	if e.sess != sess || sess.identity == "" {
		e.mu.Unlock()
		return
	}
	draft := e.state.Draft.Clone()
	rev := sess.rev
	e.state = Reduce(e.state, SaveStart{})
	e.mu.Unlock()

	err := e.store.Save(ctx, sess.identity, draft)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.logger.Warn().Err(err).Str("identity", sess.identity).Msg("draft save failed")
	}
	// The draft changed while saving: a newer save is scheduled, or a clear
	// or publish already reset the status.
	if e.sess != sess || sess.rev != rev {
		return
	}
	if err != nil {
		e.state = Reduce(e.state, SaveFailure{})
		return
	}
	e.state = Reduce(e.state, SaveSuccess{})
}

// Clear discards the draft locally and in the store
func (e *Engine) Clear(ctx context.Context) {
	e.mu.Lock()
	e.sess.stopTimer()
	e.sess.rev++
	e.state = Reduce(e.state, Clear{})
	sess := e.sess
	e.mu.Unlock()

	e.clearStored(ctx, sess)
}

func (e *Engine) clearStored(ctx context.Context, sess *session) {
	sess.writes.Lock()
	defer sess.writes.Unlock()
	e.store.Clear(ctx, sess.identity)
}

// Publish submits the draft. On success the draft is reset and the
// returned item, marked pending, is ready for optimistic insertion. A
// conflict error satisfies errors.Is(err, apierr.ErrConflict) and leaves
// the draft in place.
func (e *Engine) Publish(ctx context.Context, viewer models.Viewer, opts models.PublishOptions) (models.FeedItem, error) {
	e.mu.Lock()
	if e.state.Phase == PhasePublishing {
		e.mu.Unlock()
		return models.FeedItem{}, ErrPublishInProgress
	}
	if !e.state.Draft.HasContent() {
		e.mu.Unlock()
		return models.FeedItem{}, apierr.Validation("cannot publish an empty draft")
	}
	draft := e.state.Draft.Clone()
	e.state = Reduce(e.state, PublishStart{})
	e.sess.stopTimer()
	sess := e.sess
	e.mu.Unlock()

	if opts.ArticleTitle == "" {
		opts.ArticleTitle = strings.TrimSpace(draft.Title)
	}
	content := buildContent(draft, opts)
	supersedes := opts.SupersedesID
	if supersedes == "" {
		supersedes = draft.OriginPublicationID
	}

	e.logger.Debug().
		Str("assertion_type", string(content.AssertionType)).
		Str("supersedes_id", supersedes).
		Msg("publishing")

	receipt, err := e.publisher.Publish(ctx, content, publication.Request{
		ClearDraft:   opts.ClearDraft,
		SupersedesID: supersedes,
	})

	e.mu.Lock()
	if err != nil {
		message := err.Error()
		var conflict *apierr.ConflictError
		if errors.As(err, &conflict) {
			message = conflict.Error()
		}
		if e.sess == sess {
			e.state = Reduce(e.state, PublishError{Message: message})
			e.scheduleSaveLocked()
		}
		e.mu.Unlock()
		e.logger.Warn().Err(err).Str("supersedes_id", supersedes).Msg("publish failed")
		if apierr.IsConflict(err) {
			return models.FeedItem{}, err
		}
		return models.FeedItem{}, fmt.Errorf("failed to publish: %w", err)
	}

	if e.sess == sess {
		e.state = Reduce(e.state, PublishSuccess{ID: receipt.AssertionID})
		sess.rev++
	}
	e.mu.Unlock()

	// The stored draft must not outlive what was just published.
	if opts.ClearDraft {
		e.clearStored(ctx, sess)
	} else {
		e.save(ctx, sess)
	}

	createdAt := receipt.CreatedAt
	if createdAt.IsZero() {
		createdAt = e.now()
	}
	return models.FeedItem{
		AssertionID: receipt.AssertionID,
		AuthorID:    viewer.ID,
		Author: models.Author{
			ID:          viewer.ID,
			DisplayName: viewer.DisplayName,
			Handle:      viewer.Handle,
		},
		AssertionType: content.AssertionType,
		Title:         content.Title,
		Text:          content.Text,
		Media:         content.Media,
		CreatedAt:     createdAt,
		Visibility:    content.Visibility,
		ReplyTo:       opts.ReplyTo,
		SupersedesID:  supersedes,
		IsPending:     true,
	}, nil
}

// Close stops the autosave timer and cancels in-flight saves
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.close()
}

// AssertionTypeFor derives the type of a publish: an article title wins over
// a reply target, which wins over a plain note.
func AssertionTypeFor(opts models.PublishOptions) models.AssertionType {
	switch {
	case opts.ArticleTitle != "":
		return models.AssertionArticle
	case opts.ReplyTo != "":
		return models.AssertionResponse
	}
	return models.AssertionNote
}

func buildContent(draft models.ComposerDraft, opts models.PublishOptions) models.Content {
	refs := []string{}
	if opts.ReplyTo != "" {
		refs = append(refs, opts.ReplyTo)
	}
	return models.Content{
		Title:               opts.ArticleTitle,
		Text:                draft.Text,
		AssertionType:       AssertionTypeFor(opts),
		Visibility:          models.VisibilityPublic,
		Refs:                refs,
		Media:               draft.Media,
		OriginPublicationID: draft.OriginPublicationID,
	}
}
