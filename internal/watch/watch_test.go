package watch

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/internal/fakeserver"
	"github.com/feedsync/internal/feed"
	"github.com/feedsync/internal/notifications"
	"github.com/feedsync/internal/publication"
	"github.com/feedsync/internal/retry"
	"github.com/feedsync/pkg/models"
)

var (
	ada = models.Viewer{ID: "u1", DisplayName: "Ada", Role: models.RoleUser}
	bob = models.Viewer{ID: "u2", DisplayName: "Bob", Role: models.RoleUser}
)

func clientFor(t *testing.T, srv *fakeserver.Server, url string, viewer models.Viewer) *apiclient.Client {
	t.Helper()
	token, err := srv.IssueToken(viewer)
	require.NoError(t, err)
	api, err := apiclient.New(apiclient.Options{BaseURL: url, Token: token, Retry: retry.NoRetry()})
	require.NoError(t, err)
	return api
}

func post(text string, refs ...string) models.Content {
	c := models.Content{
		Text:          text,
		AssertionType: models.AssertionNote,
		Visibility:    models.VisibilityPublic,
		Refs:          append([]string{}, refs...),
		Media:         []models.MediaItem{},
	}
	if len(refs) > 0 {
		c.AssertionType = models.AssertionResponse
	}
	return c
}

func TestPollReportsOnlyNewItems(t *testing.T) {
	srv, err := fakeserver.New(fakeserver.Options{Secret: []byte("s")})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	ctx := context.Background()

	adaAPI := clientFor(t, srv, ts.URL, ada)
	bobPub := publication.NewClient(clientFor(t, srv, ts.URL, bob))

	first, err := bobPub.Publish(ctx, post("already there"), publication.Request{})
	require.NoError(t, err)

	session := feed.NewSession(feed.NewHTTPFetcher(adaAPI), ada.ID)
	defer session.Close()
	w := New(session, notifications.NewCenter(notifications.NewHTTPGateway(adaAPI), 0))

	update, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, update.Empty(), "first poll primes the watcher")

	mine, err := publication.NewClient(adaAPI).Publish(ctx, post("hello"), publication.Request{})
	require.NoError(t, err)
	_, err = bobPub.Publish(ctx, post("hi ada", mine.AssertionID), publication.Request{})
	require.NoError(t, err)

	update, err = w.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, update.NewItems, 2)
	assert.Equal(t, mine.AssertionID, update.NewItems[0].AssertionID)
	assert.Equal(t, "hi ada", update.NewItems[1].Text)
	assert.Equal(t, 1, update.UnreadCount)
	for _, it := range update.NewItems {
		assert.NotEqual(t, first.AssertionID, it.AssertionID)
	}

	update, err = w.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, update.Empty())
}

func TestRunStopsWithContext(t *testing.T) {
	srv, err := fakeserver.New(fakeserver.Options{Secret: []byte("s")})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	api := clientFor(t, srv, ts.URL, ada)
	session := feed.NewSession(feed.NewHTTPFetcher(api), ada.ID)
	defer session.Close()
	w := New(session, nil)

	assert.Error(t, w.Run(context.Background(), "not a schedule", func(Update) {}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, "@every 1h", func(Update) {}) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
