// internal/api/handler_test.go
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github-mirror/internal/auth"
	"github-mirror/internal/config"
	"github-mirror/internal/model"
	"github-mirror/internal/store"
)

// MockStore mocks the store methods the handlers under test touch. The
// embedded interface panics on anything unmocked.
type MockStore struct {
	mock.Mock
	store.Store
}

func (m *MockStore) GetIntegration(ctx context.Context, ownerID string) (model.Integration, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(model.Integration), args.Error(1)
}
func (m *MockStore) DeleteOwnerData(ctx context.Context, ownerID string) error {
	return m.Called(ctx, ownerID).Error(0)
}
func (m *MockStore) GetSyncStatus(ctx context.Context, ownerID string) (model.SyncStatus, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(model.SyncStatus), args.Error(1)
}
func (m *MockStore) Summary(ctx context.Context, ownerID string) (model.Summary, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(model.Summary), args.Error(1)
}
func (m *MockStore) ListRepositories(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Repository, int64, error) {
	args := m.Called(ctx, ownerID, q)
	return args.Get(0).([]model.Repository), args.Get(1).(int64), args.Error(2)
}
func (m *MockStore) RepoCommits(ctx context.Context, ownerID, fullName string) ([]model.Commit, error) {
	args := m.Called(ctx, ownerID, fullName)
	return args.Get(0).([]model.Commit), args.Error(1)
}

type testEnv struct {
	router   http.Handler
	store    *MockStore
	sessions *auth.Sessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mockQ := new(MockStore)
	sessions := auth.NewSessions("test-secret")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := &config.Config{
		GithubClientID:     "client-id",
		GithubClientSecret: "client-secret",
		FrontendOrigin:     "http://localhost:4200",
	}
	authHandler := auth.NewHandler(cfg, sessions, mockQ, nil, nil, logger)

	return &testEnv{
		router:   NewRouter(mockQ, sessions, authHandler, logger),
		store:    mockQ,
		sessions: sessions,
	}
}

// authedCookie mints a session cookie bound to ownerID.
func (e *testEnv) authedCookie(t *testing.T, ownerID string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, e.sessions.SetOwner(rec, req, ownerID))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func (e *testEnv) do(t *testing.T, method, target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/github/repos", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", decodeBody(t, rec)["error"])
}

func TestGetStatus(t *testing.T) {
	t.Run("no session reports disconnected", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodGet, "/api/github/status", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decodeBody(t, rec)["connected"])
	})

	t.Run("session without integration reports disconnected", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetIntegration", mock.Anything, "42").Return(model.Integration{}, pgx.ErrNoRows).Once()

		rec := env.do(t, http.MethodGet, "/api/github/status", env.authedCookie(t, "42"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decodeBody(t, rec)["connected"])
	})

	t.Run("connected account reports username", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetIntegration", mock.Anything, "42").Return(model.Integration{
			OwnerID:      "42",
			Username:     "alice",
			LastSyncedAt: time.Now(),
		}, nil).Once()

		rec := env.do(t, http.MethodGet, "/api/github/status", env.authedCookie(t, "42"))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["connected"])
		assert.Equal(t, "alice", body["username"])
	})
}

func TestGetEntityData(t *testing.T) {
	t.Run("unknown entity is a bad request", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodGet, "/api/github/widgets", env.authedCookie(t, "42"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Unknown entity", decodeBody(t, rec)["error"])
	})

	t.Run("repos listing returns the paginated shape", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("ListRepositories", mock.Anything, "42", model.ListQuery{Search: "widget", Page: 2, Limit: 10}).
			Return([]model.Repository{{RepoID: 1, FullName: "alice/widget"}}, int64(11), nil).Once()

		rec := env.do(t, http.MethodGet, "/api/github/repos?search=widget&page=2&limit=10", env.authedCookie(t, "42"))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(2), body["page"])
		assert.Equal(t, float64(10), body["limit"])
		assert.Equal(t, float64(11), body["total"])
		data, ok := body["data"].([]any)
		require.True(t, ok)
		assert.Len(t, data, 1)
		env.store.AssertExpectations(t)
	})

	t.Run("empty result is a JSON array, not null", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("ListRepositories", mock.Anything, "42", mock.Anything).
			Return([]model.Repository(nil), int64(0), nil).Once()

		rec := env.do(t, http.MethodGet, "/api/github/repos", env.authedCookie(t, "42"))

		assert.Equal(t, http.StatusOK, rec.Code)
		data, ok := decodeBody(t, rec)["data"].([]any)
		require.True(t, ok)
		assert.Empty(t, data)
	})
}

func TestRemoveIntegration(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("DeleteOwnerData", mock.Anything, "42").Return(nil).Once()

	rec := env.do(t, http.MethodPost, "/api/github/remove", env.authedCookie(t, "42"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
	env.store.AssertExpectations(t)
}

func TestGetRepositoryCommits(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("RepoCommits", mock.Anything, "42", "acme/widget").
		Return([]model.Commit{{SHA: "abc", RepoFullName: "acme/widget"}}, nil).Once()

	rec := env.do(t, http.MethodGet, "/api/github/repositories/acme/widget/commits", env.authedCookie(t, "42"))

	assert.Equal(t, http.StatusOK, rec.Code)
	var commits []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commits))
	require.Len(t, commits, 1)
	assert.Equal(t, "abc", commits[0]["sha"])
	env.store.AssertExpectations(t)
}

func TestGetSyncStatus_EmptyWhenNeverSynced(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("GetSyncStatus", mock.Anything, "42").Return(model.SyncStatus{}, pgx.ErrNoRows).Once()

	rec := env.do(t, http.MethodGet, "/api/github/sync-status", env.authedCookie(t, "42"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec))
}

func TestGetSummary(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("Summary", mock.Anything, "42").Return(model.Summary{
		Repositories: 3,
		Commits:      120,
	}, nil).Once()

	rec := env.do(t, http.MethodGet, "/api/github/summary", env.authedCookie(t, "42"))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["repositories"])
	assert.Equal(t, float64(120), body["commits"])
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}
