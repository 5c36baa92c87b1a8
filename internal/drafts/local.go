package drafts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/internal/localstate"
	"github.com/feedsync/pkg/models"
)

// LocalStore keeps drafts in the installation database, one per identity
type LocalStore struct {
	state  *localstate.Store
	logger zerolog.Logger
}

// NewLocalStore creates a store on top of the installation database
func NewLocalStore(state *localstate.Store) *LocalStore {
	return &LocalStore{
		state:  state,
		logger: log.With().Str("component", "drafts.local").Logger(),
	}
}

func key(identity string) string {
	return "composer:draft:" + identity
}

// Load returns the stored draft or nil
func (s *LocalStore) Load(ctx context.Context, identity string) *models.ComposerDraft {
	if identity == "" {
		return nil
	}

	payload, err := s.state.GetDraft(ctx, key(identity))
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("draft load failed")
		return nil
	}
	if payload == nil {
		return nil
	}

	draft, err := decodeEnvelope(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("discarding stored draft")
		return nil
	}
	return draft
}

// Save replaces the stored draft
func (s *LocalStore) Save(ctx context.Context, identity string, draft models.ComposerDraft) error {
	if identity == "" {
		return nil
	}

	env, err := wrap(ctx, s.state, draft)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encode draft: %w", apierr.ErrPersistence, err)
	}
	if err := s.state.PutDraft(ctx, key(identity), payload); err != nil {
		return fmt.Errorf("%w: %w", apierr.ErrPersistence, err)
	}
	return nil
}

// Clear deletes the stored draft
func (s *LocalStore) Clear(ctx context.Context, identity string) {
	if identity == "" {
		return
	}
	if err := s.state.DeleteDraft(ctx, key(identity)); err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("draft clear failed")
	}
}
