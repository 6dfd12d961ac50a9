package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/middleware"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/profile"
	"github.com/dukerupert/chorequest/internal/store"
)

type AuthHandler struct {
	profiles     *profile.Service
	sessions     *store.SessionStore
	tokens       *auth.TokenIssuer
	verifier     auth.Verifier
	secureCookie bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewAuthHandler wires sign-in. verifier may be nil, which disables
// federated sign-in.
func NewAuthHandler(profiles *profile.Service, sessions *store.SessionStore, tokens *auth.TokenIssuer, verifier auth.Verifier, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		profiles:     profiles,
		sessions:     sessions,
		tokens:       tokens,
		verifier:     verifier,
		secureCookie: secureCookie,
		logger:       logger,
		now:          time.Now,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Profile   *model.Profile `json:"profile"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.profiles.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.startSession(w, r, p, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.profiles.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthenticated {
			h.logger.Warn("failed sign-in", "remote", middleware.RealIP(r))
		}
		writeError(w, r, h.logger, err)
		return
	}
	h.startSession(w, r, p, http.StatusOK)
}

// Firebase exchanges a Firebase ID token for a session, creating the
// profile on first sign-in.
func (h *AuthHandler) Firebase(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		writeMessage(w, http.StatusNotImplemented, "federated sign-in is not configured")
		return
	}
	var req struct {
		IDToken string `json:"id_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IDToken == "" {
		writeMessage(w, http.StatusBadRequest, "id_token is required")
		return
	}

	id, err := h.verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		h.logger.Warn("firebase token rejected", "error", err)
		writeMessage(w, http.StatusUnauthorized, "invalid ID token")
		return
	}
	p, err := h.profiles.EnsureForLogin(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.startSession(w, r, p, http.StatusOK)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(r.Context(), ac.SessionID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// startSession creates a session, sets the cookie and returns a bearer token
// bound to the same session.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, p *model.Profile, status int) {
	sess, err := h.sessions.Create(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	token, err := h.tokens.Issue(p.ID, sess.ID, h.now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("session started", "user_id", p.ID, "session_id", sess.ID)
	writeJSON(w, status, sessionResponse{Token: token, ExpiresAt: sess.ExpiresAt, Profile: p})
}
