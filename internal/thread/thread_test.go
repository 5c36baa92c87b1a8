package thread

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/internal/composer"
	"github.com/feedsync/internal/publication"
	"github.com/feedsync/internal/retry"
	"github.com/feedsync/pkg/models"
)

type fakeBackend struct {
	mu         sync.Mutex
	thread     models.Thread
	fetchErr   error
	deleteErr  error
	fetches    int
	deleted    []string
	publishErr error
}

func (b *fakeBackend) FetchThread(ctx context.Context, id string) (models.Thread, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.fetchErr != nil {
		return models.Thread{}, b.fetchErr
	}
	return b.thread, nil
}

func (b *fakeBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deleted = append(b.deleted, id)
	return nil
}

func (b *fakeBackend) Publish(ctx context.Context, content models.Content, req publication.Request) (models.PublishReceipt, error) {
	if b.publishErr != nil {
		return models.PublishReceipt{}, b.publishErr
	}
	return models.PublishReceipt{AssertionID: "R9", CreatedAt: time.Now()}, nil
}

type nopStore struct{}

func (nopStore) Load(context.Context, string) *models.ComposerDraft       { return nil }
func (nopStore) Save(context.Context, string, models.ComposerDraft) error { return nil }
func (nopStore) Clear(context.Context, string)                            {}

func fixture() models.Thread {
	return models.Thread{
		Root: models.FeedItem{AssertionID: "A1", Author: models.Author{ID: "u1"}},
		Responses: []models.FeedItem{
			{AssertionID: "R1", Author: models.Author{ID: "u2"}},
		},
		Count: 1,
	}
}

var (
	author = models.Viewer{ID: "u1", Role: models.RoleUser}
	other  = models.Viewer{ID: "u3", Role: models.RoleUser}
	admin  = models.Viewer{ID: "u4", Role: models.RoleAdmin}
)

func TestLoadNotFound(t *testing.T) {
	b := &fakeBackend{fetchErr: &apierr.StatusError{Op: "thread fetch", StatusCode: http.StatusNotFound}}
	s := NewSession("A1", b, b, nil)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, StatusNotFound, s.Snapshot().Status)
}

func TestLoadErrorKeepsThread(t *testing.T) {
	b := &fakeBackend{thread: fixture()}
	s := NewSession("A1", b, b, nil)
	require.NoError(t, s.Load(context.Background()))

	b.fetchErr = errors.New("offline")
	require.Error(t, s.Load(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	require.NotNil(t, snap.Thread)
	assert.Equal(t, "A1", snap.Thread.Root.AssertionID)
}

func TestDeleteResponseReloads(t *testing.T) {
	b := &fakeBackend{thread: fixture()}
	s := NewSession("A1", b, b, nil)
	require.NoError(t, s.Load(context.Background()))

	b.thread.Responses = []models.FeedItem{}
	outcome, err := s.Delete(context.Background(), admin, "R1")
	require.NoError(t, err)

	assert.Equal(t, Reloaded, outcome)
	assert.Equal(t, []string{"R1"}, b.deleted)
	assert.Empty(t, s.Snapshot().Thread.Responses)
	assert.Equal(t, 2, b.fetches)
}

func TestDeleteFindsDeeplyNestedResponse(t *testing.T) {
	th := fixture()
	th.Responses[0].Responses = []models.FeedItem{{
		AssertionID: "R2",
		Author:      models.Author{ID: "u2"},
		Responses:   []models.FeedItem{{AssertionID: "R3", AuthorID: "u3"}},
	}}
	b := &fakeBackend{thread: th}
	s := NewSession("A1", b, b, nil)
	require.NoError(t, s.Load(context.Background()))

	outcome, err := s.Delete(context.Background(), other, "R3")
	require.NoError(t, err)
	assert.Equal(t, Reloaded, outcome)
	assert.Equal(t, []string{"R3"}, b.deleted)
}

func TestDeleteRootEndsThread(t *testing.T) {
	b := &fakeBackend{thread: fixture()}
	s := NewSession("A1", b, b, nil)
	require.NoError(t, s.Load(context.Background()))

	outcome, err := s.Delete(context.Background(), author, "A1")
	require.NoError(t, err)
	assert.Equal(t, RootDeleted, outcome)
	assert.Equal(t, StatusNotFound, s.Snapshot().Status)
}

func TestDeleteRequiresPermission(t *testing.T) {
	b := &fakeBackend{thread: fixture()}
	s := NewSession("A1", b, b, nil)
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Delete(context.Background(), other, "A1")
	assert.ErrorIs(t, err, apierr.ErrUnauthorized)
	_, err = s.Delete(context.Background(), models.Viewer{}, "R1")
	assert.ErrorIs(t, err, apierr.ErrUnauthorized)
	assert.Empty(t, b.deleted)
}

func TestDeleteConflictReloads(t *testing.T) {
	b := &fakeBackend{thread: fixture(), deleteErr: &apierr.ConflictError{Op: "delete", TargetID: "R1"}}
	s := NewSession("A1", b, b, nil)
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Delete(context.Background(), admin, "R1")
	assert.True(t, apierr.IsConflict(err))
	assert.Equal(t, 2, b.fetches)
}

func TestReplyPublishesResponse(t *testing.T) {
	b := &fakeBackend{thread: fixture()}
	reply := composer.NewEngine(nopStore{}, b, composer.Options{})
	defer reply.Close()
	s := NewSession("A1", b, b, reply)
	require.NoError(t, s.Load(context.Background()))

	reply.SetText("me too")
	b.thread.Responses = append(b.thread.Responses, models.FeedItem{AssertionID: "R9"})
	item, err := s.Reply(context.Background(), other)
	require.NoError(t, err)

	assert.Equal(t, models.AssertionResponse, item.AssertionType)
	assert.Equal(t, "A1", item.ReplyTo)
	assert.Len(t, s.Snapshot().Thread.Responses, 2)
}

func TestHTTPFetcherMapsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/thread/A1":
			io.WriteString(w, `{"root":{"assertionId":"A1"},"responses":null,"count":0}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	api, err := apiclient.New(apiclient.Options{BaseURL: server.URL, Retry: retry.NoRetry()})
	require.NoError(t, err)
	f := NewHTTPFetcher(api)

	th, err := f.FetchThread(context.Background(), "A1")
	require.NoError(t, err)
	assert.NotNil(t, th.Responses)

	_, err = f.FetchThread(context.Background(), "missing")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}
