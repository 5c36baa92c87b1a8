package localstate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "feedsync.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestClientIDIsStableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)

	id, err := s.ClientID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := s.ClientID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	persisted, err := reopened.ClientID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, persisted)
}

func TestDraftPayloadLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	payload, err := s.GetDraft(ctx, "composer:draft:u1")
	require.NoError(t, err)
	assert.Nil(t, payload)

	require.NoError(t, s.PutDraft(ctx, "composer:draft:u1", []byte(`{"a":1}`)))
	require.NoError(t, s.PutDraft(ctx, "composer:draft:u1", []byte(`{"a":2}`)))

	payload, err = s.GetDraft(ctx, "composer:draft:u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(payload))

	require.NoError(t, s.DeleteDraft(ctx, "composer:draft:u1"))
	require.NoError(t, s.DeleteDraft(ctx, "composer:draft:u1"))

	payload, err = s.GetDraft(ctx, "composer:draft:u1")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	v, err := s.GetSetting(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetSetting(ctx, "k", "v1"))
	require.NoError(t, s.SetSetting(ctx, "k", "v2"))
	v, err = s.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}
