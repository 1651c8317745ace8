// internal/gh/client_test.go
package gh

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a httptest server and a client pointing to it.
// go-github prefixes enterprise base URLs with /api/v3, so handlers match on
// the trimmed path.
func setupTestClient(t *testing.T, routes map[string]string) (*Client, *httptest.Server) {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v3")
		body, ok := routes[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, body)
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := NewClient("", logger)
	require.NoError(t, client.WithBaseURL(server.URL))

	return client, server
}

func TestClient_Issues_ExcludesPullRequests(t *testing.T) {
	client, _ := setupTestClient(t, map[string]string{
		"/repos/acme/widget/issues": `[
			{"number": 1, "title": "real issue", "state": "open", "user": {"login": "alice"}, "html_url": "u1"},
			{"number": 2, "title": "actually a PR", "state": "open", "user": {"login": "bob"}, "pull_request": {"url": "pr-url"}, "html_url": "u2"},
			{"number": 3, "title": "another issue", "state": "closed", "user": {"login": "carol"}, "html_url": "u3"}
		]`,
	})

	issues, err := client.Issues(context.Background(), "acme/widget", 0)

	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 1, issues[0].Number)
	assert.Equal(t, 3, issues[1].Number)
	assert.Equal(t, "acme/widget", issues[0].RepoFullName)
}

func TestClient_ResolveParent(t *testing.T) {
	t.Run("fork with parent resolves to parent", func(t *testing.T) {
		client, _ := setupTestClient(t, map[string]string{
			"/repos/me/widget": `{"id": 10, "full_name": "me/widget", "fork": true, "parent": {"id": 1, "full_name": "acme/widget"}}`,
		})

		name, err := client.ResolveParent(context.Background(), "me/widget")

		require.NoError(t, err)
		assert.Equal(t, "acme/widget", name)
	})

	t.Run("fork without parent resolves to itself", func(t *testing.T) {
		client, _ := setupTestClient(t, map[string]string{
			"/repos/me/orphan": `{"id": 11, "full_name": "me/orphan", "fork": true}`,
		})

		name, err := client.ResolveParent(context.Background(), "me/orphan")

		require.NoError(t, err)
		assert.Equal(t, "me/orphan", name)
	})

	t.Run("detail fetch failure propagates", func(t *testing.T) {
		client, _ := setupTestClient(t, map[string]string{})

		_, err := client.ResolveParent(context.Background(), "me/missing")

		require.Error(t, err)
	})
}

func TestClient_ForkedRepositories_FiltersNonForks(t *testing.T) {
	client, _ := setupTestClient(t, map[string]string{
		"/user/repos": `[
			{"id": 1, "full_name": "me/fork-a", "fork": true},
			{"id": 2, "full_name": "me/original", "fork": false},
			{"id": 3, "full_name": "me/fork-b", "fork": true}
		]`,
	})

	names, err := client.ForkedRepositories(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"me/fork-a", "me/fork-b"}, names)
}

func TestClient_Organizations_NameFallsBackToLogin(t *testing.T) {
	client, _ := setupTestClient(t, map[string]string{
		"/user/orgs": `[
			{"id": 5, "login": "acme", "description": "Widgets"},
			{"id": 6, "login": "globex", "name": "Globex Corp"}
		]`,
	})

	orgs, err := client.Organizations(context.Background())

	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "acme", orgs[0].Name)
	assert.Equal(t, "Globex Corp", orgs[1].Name)
}

func TestClient_Commits_Translation(t *testing.T) {
	client, _ := setupTestClient(t, map[string]string{
		"/repos/acme/widget/commits": `[
			{"sha": "abc", "commit": {"author": {"name": "Alice", "date": "2024-01-02T12:00:00Z"}, "message": "feat: thing"}, "author": {"login": "alice"}, "html_url": "u1"},
			{"sha": "def", "commit": {"author": {"name": "Bob", "date": "2024-01-01T12:00:00Z"}, "message": "fix: bug"}, "html_url": "u2"}
		]`,
	})

	commits, err := client.Commits(context.Background(), "acme/widget", 0)

	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "abc", commits[0].SHA)
	assert.Equal(t, "feat: thing", commits[0].Message)
	assert.Equal(t, "Alice", commits[0].AuthorName)
	assert.Equal(t, "alice", commits[0].AuthorLogin)
	require.NotNil(t, commits[0].CommittedAt)
	// Commit author missing from GitHub leaves the login empty.
	assert.Equal(t, "", commits[1].AuthorLogin)
}

func TestClient_PullRequests_MergedAtNilWhenUnmerged(t *testing.T) {
	client, _ := setupTestClient(t, map[string]string{
		"/repos/acme/widget/pulls": `[
			{"number": 7, "title": "merged", "state": "closed", "user": {"login": "alice"}, "created_at": "2024-02-01T00:00:00Z", "merged_at": "2024-02-02T00:00:00Z", "html_url": "p1"},
			{"number": 8, "title": "open", "state": "open", "user": {"login": "bob"}, "created_at": "2024-02-03T00:00:00Z", "html_url": "p2"}
		]`,
	})

	pulls, err := client.PullRequests(context.Background(), "acme/widget", 0)

	require.NoError(t, err)
	require.Len(t, pulls, 2)
	assert.NotNil(t, pulls[0].MergedAt)
	assert.Nil(t, pulls[1].MergedAt)
}
