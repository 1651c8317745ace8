// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"github-mirror/internal/auth"
	custom_errors "github-mirror/internal/errors"
	"github-mirror/internal/model"
	"github-mirror/internal/store"
)

type ownerKey struct{}

// Handler is the container for API dependencies.
type Handler struct {
	db       store.Store
	sessions *auth.Sessions
	logger   *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db store.Store, sessions *auth.Sessions, authHandler *auth.Handler, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:       db,
		sessions: sessions,
		logger:   logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Route("/auth", authHandler.Register)
	r.Route("/api/github", func(r chi.Router) {
		r.Get("/status", h.getStatus)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/remove", h.removeIntegration)
			r.Get("/profile", h.getProfile)
			r.Get("/organizations", h.getOrganizations)
			r.Get("/repositories", h.getRepositories)
			r.Get("/repositories/{owner}/{repo}/commits", h.getRepositoryCommits)
			r.Get("/repositories/{owner}/{repo}/pulls", h.getRepositoryPulls)
			r.Get("/repositories/{owner}/{repo}/issues", h.getRepositoryIssues)
			r.Get("/repositories/{owner}/{repo}/releases", h.getRepositoryReleases)
			r.Get("/summary", h.getSummary)
			r.Get("/sync-status", h.getSyncStatus)
			r.Get("/{entity}", h.getEntityData)
		})
	})

	return r
}

// requireAuth rejects requests without a session-bound owner identity.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := h.sessions.OwnerID(r)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, ownerID)))
	})
}

func ownerFromContext(ctx context.Context) string {
	ownerID, _ := ctx.Value(ownerKey{}).(string)
	return ownerID
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getStatus reports whether the session belongs to a connected account.
// GET /api/github/status
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.sessions.OwnerID(r)
	if !ok {
		respondWithJSON(w, http.StatusOK, map[string]any{"connected": false})
		return
	}
	integration, err := h.db.GetIntegration(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithJSON(w, http.StatusOK, map[string]any{"connected": false})
			return
		}
		h.logger.Error("Failed to get integration", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"connected":  true,
		"username":   integration.Username,
		"lastSynced": integration.LastSyncedAt,
	})
}

// removeIntegration disconnects the account: every owner-scoped row is
// deleted and the session is destroyed.
// POST /api/github/remove
func (h *Handler) removeIntegration(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	if err := h.db.DeleteOwnerData(r.Context(), ownerID); err != nil {
		h.logger.Error("Failed to remove integration", "owner", ownerID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to remove integration")
		return
	}
	if err := h.sessions.Clear(w, r); err != nil {
		h.logger.Error("Session destroy error", "error", err)
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// getEntityData is the generic listing route with search and pagination.
// GET /api/github/{entity}?search=&page=&limit=
func (h *Handler) getEntityData(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	entity := chi.URLParam(r, "entity")

	payload, err := h.listEntity(r.Context(), ownerID, entity, listQueryFromRequest(r))
	if err != nil {
		var unknown *custom_errors.ErrUnknownEntity
		if errors.As(err, &unknown) {
			respondWithError(w, http.StatusBadRequest, "Unknown entity")
			return
		}
		h.logger.Error("Failed to list entity data", "entity", entity, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch data")
		return
	}
	respondWithJSON(w, http.StatusOK, payload)
}

func (h *Handler) listEntity(ctx context.Context, ownerID, entity string, q model.ListQuery) (any, error) {
	switch entity {
	case "organizations":
		return listPayload(h.db.ListOrganizations)(ctx, ownerID, q)
	case "repos":
		return listPayload(h.db.ListRepositories)(ctx, ownerID, q)
	case "commits":
		return listPayload(h.db.ListCommits)(ctx, ownerID, q)
	case "pulls":
		return listPayload(h.db.ListPullRequests)(ctx, ownerID, q)
	case "issues":
		return listPayload(h.db.ListIssues)(ctx, ownerID, q)
	case "changelogs":
		return listPayload(h.db.ListReleases)(ctx, ownerID, q)
	case "users":
		return listPayload(h.db.ListExternalUsers)(ctx, ownerID, q)
	default:
		return nil, &custom_errors.ErrUnknownEntity{Entity: entity}
	}
}

// listPayload adapts a store listing method into the {data,page,limit,total}
// response shape.
func listPayload[T any](list func(context.Context, string, model.ListQuery) ([]T, int64, error)) func(context.Context, string, model.ListQuery) (any, error) {
	return func(ctx context.Context, ownerID string, q model.ListQuery) (any, error) {
		items, total, err := list(ctx, ownerID, q)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		q = q.Normalize()
		return map[string]any{
			"data":  items,
			"page":  q.Page,
			"limit": q.Limit,
			"total": total,
		}, nil
	}
}

func listQueryFromRequest(r *http.Request) model.ListQuery {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return model.ListQuery{
		Search: r.URL.Query().Get("search"),
		Page:   page,
		Limit:  limit,
	}.Normalize()
}

// getProfile returns the owner's integration info.
// GET /api/github/profile
func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	integration, err := h.db.GetIntegration(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Integration not found")
			return
		}
		h.logger.Error("Failed to get profile", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"githubId":   integration.OwnerID,
		"username":   integration.Username,
		"avatarUrl":  integration.AvatarURL,
		"lastSynced": integration.LastSyncedAt,
	})
}

// GET /api/github/organizations
func (h *Handler) getOrganizations(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	orgs, _, err := h.db.ListOrganizations(r.Context(), ownerID, listQueryFromRequest(r))
	if err != nil {
		h.logger.Error("Failed to get organizations", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if orgs == nil {
		orgs = []model.Organization{}
	}
	respondWithJSON(w, http.StatusOK, orgs)
}

// GET /api/github/repositories
func (h *Handler) getRepositories(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	repos, _, err := h.db.ListRepositories(r.Context(), ownerID, listQueryFromRequest(r))
	if err != nil {
		h.logger.Error("Failed to get repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	respondWithJSON(w, http.StatusOK, repos)
}

func repoFullName(r *http.Request) string {
	return chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
}

// GET /api/github/repositories/{owner}/{repo}/commits
func (h *Handler) getRepositoryCommits(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	commits, err := h.db.RepoCommits(r.Context(), ownerID, repoFullName(r))
	if err != nil {
		h.logger.Error("Failed to get commits", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if commits == nil {
		commits = []model.Commit{}
	}
	respondWithJSON(w, http.StatusOK, commits)
}

// GET /api/github/repositories/{owner}/{repo}/pulls
func (h *Handler) getRepositoryPulls(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	pulls, err := h.db.RepoPullRequests(r.Context(), ownerID, repoFullName(r))
	if err != nil {
		h.logger.Error("Failed to get pull requests", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if pulls == nil {
		pulls = []model.PullRequest{}
	}
	respondWithJSON(w, http.StatusOK, pulls)
}

// GET /api/github/repositories/{owner}/{repo}/issues
func (h *Handler) getRepositoryIssues(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	issues, err := h.db.RepoIssues(r.Context(), ownerID, repoFullName(r))
	if err != nil {
		h.logger.Error("Failed to get issues", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if issues == nil {
		issues = []model.Issue{}
	}
	respondWithJSON(w, http.StatusOK, issues)
}

// GET /api/github/repositories/{owner}/{repo}/releases
func (h *Handler) getRepositoryReleases(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	releases, err := h.db.RepoReleases(r.Context(), ownerID, repoFullName(r))
	if err != nil {
		h.logger.Error("Failed to get releases", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if releases == nil {
		releases = []model.Release{}
	}
	respondWithJSON(w, http.StatusOK, releases)
}

// getSummary returns row counts across every entity type for the owner.
// GET /api/github/summary
func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	summary, err := h.db.Summary(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("Failed to get summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// getSyncStatus returns the owner's sync progress record, or an empty object
// if no sync has started yet.
// GET /api/github/sync-status
func (h *Handler) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	status, err := h.db.GetSyncStatus(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithJSON(w, http.StatusOK, map[string]any{})
			return
		}
		h.logger.Error("Failed to get sync status", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
