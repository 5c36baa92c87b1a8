package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/feedsync/internal/fakeserver"
	"github.com/feedsync/pkg/models"
)

type harness struct {
	t     *testing.T
	srv   *fakeserver.Server
	token string
}

// newHarness points the CLI at a fake backend signed in as viewer
func newHarness(t *testing.T, viewer models.Viewer) *harness {
	t.Helper()
	srv, err := fakeserver.New(fakeserver.Options{Secret: []byte("cli-secret")})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := srv.IssueToken(viewer)
	require.NoError(t, err)

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("FEEDSYNC_API__BASE_URL", ts.URL)
	t.Setenv("FEEDSYNC_API__TOKEN", token)
	t.Setenv("FEEDSYNC_STATE__PATH", filepath.Join(dir, "state.db"))
	t.Setenv("FEEDSYNC_RETRY__MAX_RETRIES", "0")
	return &harness{t: t, srv: srv, token: token}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	app := &cli.App{
		Name:      "feedsync",
		Writer:    &out,
		ErrWriter: io.Discard,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config"},
			&cli.StringFlag{Name: "format", Value: FormatText},
		},
		Commands: []*cli.Command{
			FeedCommand(),
			ComposeCommand(),
			ReactCommand(),
			BookmarkCommand(),
			ThreadCommand(),
			DeleteCommand(),
			NotificationsCommand(),
			ConfigCommand(),
		},
	}
	err := app.Run(append([]string{"feedsync"}, args...))
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "feedsync %s", strings.Join(args, " "))
	return out
}

var ada = models.Viewer{ID: "u1", DisplayName: "Ada", Role: models.RoleUser}

func TestPublishReactBookmarkAndDelete(t *testing.T) {
	h := newHarness(t, ada)

	out := h.mustRun("--format", "json", "compose", "publish", "--text", "hello from the terminal")
	var item models.FeedItem
	require.NoError(t, json.Unmarshal([]byte(out), &item))
	require.NotEmpty(t, item.AssertionID)
	assert.Equal(t, models.AssertionNote, item.AssertionType)
	id := item.AssertionID

	out = h.mustRun("--format", "json", "feed")
	var snap models.FeedSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "hello from the terminal", snap.Items[0].Text)

	assert.Contains(t, h.mustRun("react", id, "like"), "1 like")
	assert.Contains(t, h.mustRun("react", id), "(you: [like])")
	assert.Contains(t, h.mustRun("bookmark", id), "is bookmarked")
	assert.Contains(t, h.mustRun("bookmark", "--status", id), "is bookmarked")

	out = h.mustRun("thread", "--reply", "and a follow-up", id)
	assert.Contains(t, out, "and a follow-up")
	assert.Contains(t, out, "1 responses")

	assert.Contains(t, h.mustRun("delete", id), "Deleted "+id)
	_, err := h.run("delete", id)
	assert.Error(t, err)
	assert.Contains(t, h.mustRun("feed"), "The feed is empty")
}

func TestReviseThroughCLI(t *testing.T) {
	h := newHarness(t, ada)

	out := h.mustRun("--format", "json", "compose", "publish", "--text", "tpyo")
	var original models.FeedItem
	require.NoError(t, json.Unmarshal([]byte(out), &original))

	out = h.mustRun("--format", "json", "compose", "publish", "--revise", original.AssertionID, "--text", "typo")
	var revision models.FeedItem
	require.NoError(t, json.Unmarshal([]byte(out), &revision))
	assert.Equal(t, original.AssertionID, revision.SupersedesID)

	// the old id resolves to the current revision
	out = h.mustRun("compose", "publish", "--revise", original.AssertionID, "--text", "typo, again")
	assert.Contains(t, out, "Supersedes "+revision.AssertionID)

	out = h.mustRun("feed")
	assert.Contains(t, out, "typo, again")
	assert.NotContains(t, out, "tpyo")
}

func TestDraftCommands(t *testing.T) {
	h := newHarness(t, ada)

	assert.Contains(t, h.mustRun("compose", "draft"), "No draft")

	out := h.mustRun("compose", "draft", "--text", "work in progress", "--media", "link:https://example.com")
	assert.Contains(t, out, "work in progress")
	assert.Contains(t, out, "[link] https://example.com")

	out = h.mustRun("--format", "yaml", "compose", "draft")
	var view struct {
		Draft  models.ComposerDraft `yaml:"draft"`
		Banner string               `yaml:"banner"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, "restored", view.Banner)

	_, err := h.run("compose", "draft", "--media", "gif")
	assert.Error(t, err)

	h.mustRun("compose", "clear")
	assert.Contains(t, h.mustRun("compose", "draft"), "No draft")
}

func TestNotificationsCommand(t *testing.T) {
	h := newHarness(t, ada)
	out := h.mustRun("notifications")
	assert.Contains(t, out, "0 unread")

	_, err := h.run("--format", "xml", "notifications")
	assert.Error(t, err)
}

func TestConfigInitAndValidate(t *testing.T) {
	h := newHarness(t, ada)
	path := filepath.Join(t.TempDir(), "feedsync.toml")

	assert.Contains(t, h.mustRun("config", "init", "--output", path), path)
	out := h.mustRun("--config", path, "config", "validate")
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "Signed in as u1 (user)")

	t.Setenv("FEEDSYNC_API__TOKEN", "not-a-jwt")
	_, err := h.run("--config", path, "config", "validate")
	assert.ErrorContains(t, err, "api token")
	t.Setenv("FEEDSYNC_API__TOKEN", h.token)

	out = h.mustRun("config", "show")
	assert.Contains(t, out, h.token[:4]+"****")
	assert.NotContains(t, out, h.token)
}

func TestParseUser(t *testing.T) {
	v, err := parseUser("u7:Grace:admin")
	require.NoError(t, err)
	assert.Equal(t, models.Viewer{ID: "u7", DisplayName: "Grace", Role: models.RoleAdmin}, v)

	v, err = parseUser("u8")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, v.Role)

	_, err = parseUser(":x")
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "****", mask("short"))
	assert.Equal(t, "eyJh****", mask("eyJhbGciOiJIUzI1NiJ9"))
}

func TestOneLineTruncatesOnRuneBoundary(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("  a\n b\t c "))

	long := strings.Repeat("é", 100)
	got := oneLine(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 69)+"...", got)
}
