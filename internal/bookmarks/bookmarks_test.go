package bookmarks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/pkg/models"
)

type fakeGateway struct {
	mu      sync.Mutex
	stored  bool
	calls   []string
	fail    error
	release chan struct{}
}

func (f *fakeGateway) Fetch(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored, nil
}

func (f *fakeGateway) Add(ctx context.Context, id string) error    { return f.mutate("add", true) }
func (f *fakeGateway) Remove(ctx context.Context, id string) error { return f.mutate("remove", false) }

func (f *fakeGateway) mutate(call string, value bool) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.fail != nil {
		return f.fail
	}
	f.stored = value
	return nil
}

var member = models.Viewer{ID: "u1", Role: models.RoleUser}

func TestToggleFlipsImmediately(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{})}
	tracker := NewTracker(gw, "A1", member)
	require.NoError(t, tracker.Load(context.Background()))

	require.True(t, tracker.Toggle(context.Background()))
	view := tracker.View()
	assert.True(t, view.IsBookmarked)
	assert.True(t, view.Pending)

	assert.False(t, tracker.Toggle(context.Background()), "toggle while pending is ignored")

	close(gw.release)
	require.NoError(t, tracker.Wait())
	view = tracker.View()
	assert.True(t, view.IsBookmarked)
	assert.False(t, view.Pending)
	assert.Equal(t, []string{"add"}, gw.calls)
}

func TestToggleRevertsOnFailure(t *testing.T) {
	gw := &fakeGateway{stored: true, fail: errors.New("offline")}
	tracker := NewTracker(gw, "A1", member)
	require.NoError(t, tracker.Load(context.Background()))

	require.True(t, tracker.Toggle(context.Background()))
	require.Error(t, tracker.Wait())

	view := tracker.View()
	assert.True(t, view.IsBookmarked)
	assert.Error(t, view.Err)
	assert.Equal(t, []string{"remove"}, gw.calls)
}

func TestGuestCannotToggle(t *testing.T) {
	gw := &fakeGateway{stored: true}
	tracker := NewTracker(gw, "A1", models.Viewer{})
	require.NoError(t, tracker.Load(context.Background()))

	assert.False(t, tracker.Toggle(context.Background()))
	assert.NoError(t, tracker.Wait())
	assert.False(t, tracker.View().IsBookmarked)
	assert.Empty(t, gw.calls)
}

func TestHTTPGateway(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"isBookmarked":true}`))
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	api, err := apiclient.New(apiclient.Options{BaseURL: server.URL})
	require.NoError(t, err)
	gw := NewHTTPGateway(api)

	ok, err := gw.Fetch(context.Background(), "A1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, gw.Add(context.Background(), "A1"))
	require.NoError(t, gw.Remove(context.Background(), "A1"))
	assert.Equal(t, []string{"GET /bookmarks/A1", "POST /bookmarks", "DELETE /bookmarks"}, seen)
}
