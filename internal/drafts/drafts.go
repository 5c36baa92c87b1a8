// Package drafts persists the composer's draft per identity. Persistence is
// best effort: loads that fail for any reason report "no draft", save errors
// are returned only so the composer can show a save status, and clears only
// log.
package drafts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/pkg/models"
)

// Store loads, saves and clears one draft per identity
type Store interface {
	Load(ctx context.Context, identity string) *models.ComposerDraft
	Save(ctx context.Context, identity string, draft models.ComposerDraft) error
	Clear(ctx context.Context, identity string)
}

// ClientIDSource supplies the stable per-installation client id
type ClientIDSource interface {
	ClientID(ctx context.Context) (string, error)
}

// StaticClientID is a fixed ClientIDSource
type StaticClientID string

// ClientID returns the fixed id
func (s StaticClientID) ClientID(context.Context) (string, error) {
	return string(s), nil
}

func wrap(ctx context.Context, ids ClientIDSource, draft models.ComposerDraft) (models.DraftEnvelope, error) {
	clientID, err := ids.ClientID(ctx)
	if err != nil {
		return models.DraftEnvelope{}, fmt.Errorf("%w: client id: %w", apierr.ErrPersistence, err)
	}
	return models.DraftEnvelope{
		ClientID:      clientID,
		Draft:         normalize(draft),
		SchemaVersion: models.DraftSchemaVersion,
	}, nil
}

// unwrap returns the draft in env, or an error describing why it is unusable
func unwrap(env models.DraftEnvelope) (*models.ComposerDraft, error) {
	if env.SchemaVersion != models.DraftSchemaVersion {
		return nil, fmt.Errorf("unsupported draft schema version %d", env.SchemaVersion)
	}
	draft := normalize(env.Draft)
	return &draft, nil
}

// decodeEnvelope parses stored bytes; malformed payloads are unusable
func decodeEnvelope(payload []byte) (*models.ComposerDraft, error) {
	var env models.DraftEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("malformed draft envelope: %w", err)
	}
	return unwrap(env)
}

func normalize(d models.ComposerDraft) models.ComposerDraft {
	out := d.Clone()
	if out.Media == nil {
		out.Media = []models.MediaItem{}
	}
	return out
}
