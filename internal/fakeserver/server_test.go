package fakeserver_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/internal/drafts"
	"github.com/feedsync/internal/fakeserver"
	"github.com/feedsync/internal/feed"
	"github.com/feedsync/internal/identity"
	"github.com/feedsync/internal/notifications"
	"github.com/feedsync/internal/publication"
	"github.com/feedsync/internal/reactions"
	"github.com/feedsync/internal/retry"
	"github.com/feedsync/internal/thread"
	"github.com/feedsync/pkg/models"
)

var (
	secret = []byte("test-secret")
	ada    = models.Viewer{ID: "u1", DisplayName: "Ada", Handle: "ada", Role: models.RoleUser}
	bob    = models.Viewer{ID: "u2", DisplayName: "Bob", Handle: "bob", Role: models.RoleUser}
	admin  = models.Viewer{ID: "u9", DisplayName: "Root", Role: models.RoleAdmin}
)

type env struct {
	srv *fakeserver.Server
	url string
}

func newEnv(t *testing.T, opts fakeserver.Options) *env {
	t.Helper()
	opts.Secret = secret
	srv, err := fakeserver.New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &env{srv: srv, url: ts.URL}
}

// client returns an API client signed in as viewer, or a guest client
func (e *env) client(t *testing.T, viewer *models.Viewer) *apiclient.Client {
	t.Helper()
	token := ""
	if viewer != nil {
		var err error
		token, err = e.srv.IssueToken(*viewer)
		require.NoError(t, err)
	}
	api, err := apiclient.New(apiclient.Options{BaseURL: e.url, Token: token, Retry: retry.NoRetry()})
	require.NoError(t, err)
	return api
}

func note(text string) models.Content {
	return models.Content{
		Text:          text,
		AssertionType: models.AssertionNote,
		Visibility:    models.VisibilityPublic,
		Refs:          []string{},
		Media:         []models.MediaItem{},
	}
}

func reply(parentID, text string) models.Content {
	c := note(text)
	c.AssertionType = models.AssertionResponse
	c.Refs = []string{parentID}
	return c
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := fakeserver.New(fakeserver.Options{})
	assert.Error(t, err)
}

func TestSupersessionRules(t *testing.T) {
	e := newEnv(t, fakeserver.Options{})
	pub := publication.NewClient(e.client(t, &ada))
	ctx := context.Background()

	a1, err := pub.Publish(ctx, note("tpyo"), publication.Request{})
	require.NoError(t, err)

	a2, err := pub.Publish(ctx, note("typo"), publication.Request{SupersedesID: a1.AssertionID})
	require.NoError(t, err)

	_, err = pub.Publish(ctx, note("again"), publication.Request{SupersedesID: a1.AssertionID})
	require.Error(t, err)
	var conflict *apierr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, a1.AssertionID, conflict.TargetID)

	assert.True(t, apierr.IsConflict(pub.Delete(ctx, a1.AssertionID)))
	require.NoError(t, pub.Delete(ctx, a2.AssertionID))
	assert.True(t, apierr.IsConflict(pub.Delete(ctx, a2.AssertionID)))

	_, err = pub.Publish(ctx, note("x"), publication.Request{SupersedesID: a2.AssertionID})
	assert.True(t, apierr.IsConflict(err), "deleted assertions cannot be revised")
}

func TestOnlyAuthorOrAdminMayReviseOrDelete(t *testing.T) {
	e := newEnv(t, fakeserver.Options{})
	ctx := context.Background()
	receipt, err := publication.NewClient(e.client(t, &ada)).Publish(ctx, note("mine"), publication.Request{})
	require.NoError(t, err)

	err = publication.NewClient(e.client(t, &bob)).Delete(ctx, receipt.AssertionID)
	assert.ErrorIs(t, err, apierr.ErrUnauthorized)

	require.NoError(t, publication.NewClient(e.client(t, &admin)).Delete(ctx, receipt.AssertionID))
}

func TestAuthentication(t *testing.T) {
	e := newEnv(t, fakeserver.Options{})
	ctx := context.Background()

	_, err := publication.NewClient(e.client(t, nil)).Publish(ctx, note("hi"), publication.Request{})
	assert.True(t, apierr.IsUnauthorized(err), "guests cannot publish")

	forged, err := identity.Issue(ada, []byte("other-secret"))
	require.NoError(t, err)
	api, err := apiclient.New(apiclient.Options{BaseURL: e.url, Token: forged, Retry: retry.NoRetry()})
	require.NoError(t, err)
	_, err = feed.NewHTTPFetcher(api).Fetch(ctx, "")
	assert.True(t, apierr.IsUnauthorized(err))

	page, err := feed.NewHTTPFetcher(e.client(t, nil)).Fetch(ctx, "")
	require.NoError(t, err, "guests may read the feed")
	assert.NotNil(t, page.Items)
}

func TestPublishRejectsBlankContent(t *testing.T) {
	e := newEnv(t, fakeserver.Options{})
	_, err := publication.NewClient(e.client(t, &ada)).Publish(context.Background(), note("  "), publication.Request{})
	assert.ErrorIs(t, err, apierr.ErrValidation)
}

func TestFeedPagingAndTree(t *testing.T) {
	e := newEnv(t, fakeserver.Options{PageSize: 2})
	pub := publication.NewClient(e.client(t, &ada))
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		r, err := pub.Publish(ctx, note(text), publication.Request{})
		require.NoError(t, err)
		ids = append(ids, r.AssertionID)
	}
	_, err := publication.NewClient(e.client(t, &bob)).Publish(ctx, reply(ids[2], "nice"), publication.Request{})
	require.NoError(t, err)

	session := feed.NewSession(feed.NewHTTPFetcher(e.client(t, &ada)), ada.ID)
	defer session.Close()

	require.NoError(t, session.Load(ctx))
	snap := session.Snapshot()
	require.Len(t, snap.Items, 2)
	assert.Equal(t, ids[2], snap.Items[0].AssertionID)
	require.Len(t, snap.Items[0].Responses, 1)
	assert.Equal(t, "nice", snap.Items[0].Responses[0].Text)
	assert.Equal(t, "Bob", snap.Items[0].Responses[0].Author.DisplayName)
	assert.Equal(t, 1, snap.Items[0].ResponseCount)
	assert.True(t, snap.HasMore)

	require.NoError(t, session.LoadMore(ctx))
	snap = session.Snapshot()
	require.Len(t, snap.Items, 3)
	assert.Equal(t, ids[0], snap.Items[2].AssertionID)
	assert.False(t, snap.HasMore)
}

func TestRevisionKeepsFeedPositionAndResponses(t *testing.T) {
	e := newEnv(t, fakeserver.Options{})
	pub := publication.NewClient(e.client(t, &ada))
	ctx := context.Background()

	a1, err := pub.Publish(ctx, note("first"), publication.Request{})
	require.NoError(t, err)
	_, err = pub.Publish(ctx, note("second"), publication.Request{})
	require.NoError(t, err)
	_, err = publication.NewClient(e.client(t, &bob)).Publish(ctx, reply(a1.AssertionID, "re"), publication.Request{})
	require.NoError(t, err)

	rev, err := pub.Publish(ctx, note("first, edited"), publication.Request{SupersedesID: a1.AssertionID})
	require.NoError(t, err)

	page, err := feed.NewHTTPFetcher(e.client(t, &ada)).Fetch(ctx, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, rev.AssertionID, page.Items[1].AssertionID)
	assert.Equal(t, a1.AssertionID, page.Items[1].SupersedesID)
	require.Len(t, page.Items[1].Responses, 1)

	th, err := thread.NewHTTPFetcher(e.client(t, &ada)).FetchThread(ctx, a1.AssertionID)
	require.NoError(t, err, "old ids resolve to the current revision")
	assert.Equal(t, rev.AssertionID, th.Root.AssertionID)
	assert.Equal(t, 1, th.Count)
}

func TestThreadNotFound(t *testing.T) {
	e := newEnv(t, fakeserver.Options{})
	_, err := thread.NewHTTPFetcher(e.client(t, &ada)).FetchThread(context.Background(), "missing")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestRemoteDraftRoundTrip(t *testing.T) {
	e := newEnv(t, fakeserver.Options{})
	store := drafts.NewRemoteStore(e.client(t, &ada), drafts.StaticClientID("c1"))
	ctx := context.Background()

	assert.Nil(t, store.Load(ctx, ada.ID))

	draft := models.ComposerDraft{Text: "hello", Media: []models.MediaItem{{ID: "m1", Type: models.MediaLink, Src: "https://example.com"}}}
	require.NoError(t, store.Save(ctx, ada.ID, draft))

	loaded := store.Load(ctx, ada.ID)
	require.NotNil(t, loaded)
	assert.Equal(t, draft, *loaded)

	other := drafts.NewRemoteStore(e.client(t, &bob), drafts.StaticClientID("c2"))
	assert.Nil(t, other.Load(ctx, bob.ID), "drafts are per user")

	store.Clear(ctx, ada.ID)
	assert.Nil(t, store.Load(ctx, ada.ID))
}

func TestReactionsDriveNotifications(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newEnv(t, fakeserver.Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	post, err := publication.NewClient(e.client(t, &ada)).Publish(ctx, note("hi"), publication.Request{})
	require.NoError(t, err)

	tracker := reactions.NewTracker(reactions.NewHTTPGateway(e.client(t, &bob)), post.AssertionID, nil)
	require.NoError(t, tracker.Toggle(ctx, models.ReactionLike))
	v := tracker.View()
	assert.Equal(t, 1, v.Counts.Like)
	assert.Equal(t, []models.ReactionType{models.ReactionLike}, v.UserReactions)

	center := notifications.NewCenter(notifications.NewHTTPGateway(e.client(t, &ada)), 0)
	require.NoError(t, center.Load(ctx))
	nv := center.View()
	require.Len(t, nv.Items, 1)
	assert.Equal(t, 1, nv.UnreadCount)
	assert.Equal(t, models.NotificationReaction, nv.Items[0].NotificationType)
	assert.Equal(t, "Bob", nv.Items[0].Actor.Name)

	require.NoError(t, center.MarkRead(ctx, nv.Items[0].ID))
	assert.Zero(t, center.View().UnreadCount)

	require.NoError(t, tracker.Toggle(ctx, models.ReactionLike))
	assert.Zero(t, tracker.View().Counts.Like)

	guest := notifications.NewCenter(notifications.NewHTTPGateway(e.client(t, nil)), 0)
	require.NoError(t, guest.Load(ctx))
	assert.Empty(t, guest.View().Items)
}
