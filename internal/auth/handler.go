// internal/auth/handler.go
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github-mirror/internal/config"
	"github-mirror/internal/model"
	"github-mirror/internal/store"
)

// Scopes requested from GitHub on authorization.
var oauthScopes = []string{"repo", "read:org", "read:user"}

// UserFetcher resolves the authenticated user's profile for a token.
type UserFetcher func(ctx context.Context, token string) (model.ExternalUser, error)

// SyncStarter starts a full sync run for an owner.
type SyncStarter interface {
	Run(ctx context.Context, token, ownerID string) error
}

// Handler implements the OAuth connect/callback/logout flow.
type Handler struct {
	oauth          *oauth2.Config
	sessions       *Sessions
	store          store.Store
	syncer         SyncStarter
	fetchUser      UserFetcher
	frontendOrigin string
	logger         *slog.Logger
}

// NewHandler wires the OAuth flow from config.
func NewHandler(cfg *config.Config, sessions *Sessions, st store.Store, syncer SyncStarter, fetchUser UserFetcher, logger *slog.Logger) *Handler {
	return &Handler{
		oauth: &oauth2.Config{
			ClientID:     cfg.GithubClientID,
			ClientSecret: cfg.GithubClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       oauthScopes,
			Endpoint:     oauthgithub.Endpoint,
		},
		sessions:       sessions,
		store:          st,
		syncer:         syncer,
		fetchUser:      fetchUser,
		frontendOrigin: cfg.FrontendOrigin,
		logger:         logger,
	}
}

// Register mounts the auth routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/github", h.redirectToGitHub)
	r.Get("/github/callback", h.callback)
	r.Get("/logout", h.logout)
}

// redirectToGitHub sends the user to GitHub's authorization page.
func (h *Handler) redirectToGitHub(w http.ResponseWriter, r *http.Request) {
	if h.oauth.ClientID == "" {
		h.logger.Error("GitHub client ID is not configured")
		http.Error(w, "GitHub client ID not configured. Check your environment.", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.oauth.AuthCodeURL(""), http.StatusFound)
}

// callback exchanges the authorization code, records the integration, opens a
// session, and kicks off the sync run in the background. The HTTP response
// does not wait for any part of the sync.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing code parameter", http.StatusBadRequest)
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("OAuth code exchange failed", "error", err)
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}
	scope, _ := token.Extra("scope").(string)

	user, err := h.fetchUser(r.Context(), token.AccessToken)
	if err != nil {
		h.logger.Error("Failed to fetch authenticated user", "error", err)
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}
	ownerID := strconv.FormatInt(user.ExternalID, 10)

	integration := model.Integration{
		OwnerID:      ownerID,
		Username:     user.Login,
		AvatarURL:    user.AvatarURL,
		AccessToken:  token.AccessToken,
		Scopes:       scope,
		LastSyncedAt: time.Now().UTC(),
	}
	if err := h.store.UpsertIntegration(r.Context(), integration); err != nil {
		h.logger.Error("Failed to store integration", "error", err)
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	user.OwnerID = ownerID
	if err := h.store.UpsertExternalUser(r.Context(), user); err != nil {
		h.logger.Error("Failed to store owner profile", "error", err)
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.SetOwner(w, r, ownerID); err != nil {
		h.logger.Error("Failed to establish session", "error", err)
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	// Fire-and-forget: the run outlives this request, so it gets its own
	// context. Completion is observed via the sync-status endpoint.
	accessToken := token.AccessToken
	go func() {
		if err := h.syncer.Run(context.Background(), accessToken, ownerID); err != nil {
			h.logger.Error("Background sync run failed", "owner", ownerID, "error", err)
		}
	}()

	http.Redirect(w, r, h.frontendOrigin, http.StatusFound)
}

// logout destroys the session.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(w, r); err != nil {
		h.logger.Error("Failed to destroy session", "error", err)
		http.Error(w, "Error logging out", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.frontendOrigin, http.StatusFound)
}
