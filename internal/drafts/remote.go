package drafts

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/pkg/models"
)

// RemoteStore keeps the draft on the backend at /draft
type RemoteStore struct {
	api    *apiclient.Client
	ids    ClientIDSource
	logger zerolog.Logger
}

// NewRemoteStore creates a store backed by the draft endpoint
func NewRemoteStore(api *apiclient.Client, ids ClientIDSource) *RemoteStore {
	return &RemoteStore{
		api:    api,
		ids:    ids,
		logger: log.With().Str("component", "drafts.remote").Logger(),
	}
}

// Load returns the stored draft or nil. Absent drafts, transport failures
// and schema mismatches all read as "no draft".
func (s *RemoteStore) Load(ctx context.Context, identity string) *models.ComposerDraft {
	if identity == "" {
		return nil
	}

	var env models.DraftEnvelope
	status, err := s.api.Get(ctx, "draft load", "/draft", nil, &env)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("draft load failed")
		return nil
	}
	if status == http.StatusNoContent {
		return nil
	}

	draft, err := unwrap(env)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("discarding stored draft")
		return nil
	}
	return draft
}

// Save replaces the stored draft
func (s *RemoteStore) Save(ctx context.Context, identity string, draft models.ComposerDraft) error {
	if identity == "" {
		return nil
	}

	env, err := wrap(ctx, s.ids, draft)
	if err != nil {
		return err
	}

	if _, err := s.api.Do(ctx, apiclient.Request{
		Op:     "draft save",
		Method: http.MethodPut,
		Path:   "/draft",
		Body:   env,
	}, nil); err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("draft save failed")
		return fmt.Errorf("%w: %w", apierr.ErrPersistence, err)
	}
	return nil
}

// Clear deletes the stored draft. Failures are logged, not returned.
func (s *RemoteStore) Clear(ctx context.Context, identity string) {
	if identity == "" {
		return
	}
	if _, err := s.api.Do(ctx, apiclient.Request{
		Op:     "draft clear",
		Method: http.MethodDelete,
		Path:   "/draft",
	}, nil); err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("draft clear failed")
	}
}
