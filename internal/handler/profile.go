package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/profile"
	"github.com/dukerupert/chorequest/internal/websocket"
)

type ProfileHandler struct {
	profiles *profile.Service
	notifier
	logger *slog.Logger
}

func NewProfileHandler(profiles *profile.Service, hub *websocket.Hub, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, notifier: notifier{hub}, logger: logger}
}

func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.Get(r.Context(), ac.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	var upd model.ProfileUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	p, err := h.profiles.Update(r.Context(), ac, upd)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "profile", "updated", p.ID, nil)
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfileHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.ResetStats(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "profile", "reset", p.ID, nil)
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfileHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	board, err := h.profiles.Leaderboard(r.Context(), ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// DeleteAccount handles DELETE /api/admin/accounts?email=...|uid=...
func (h *ProfileHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if err := h.profiles.DeleteAccount(r.Context(), ac, q.Get("email"), q.Get("uid")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "profile", "deleted", 0, nil)
	w.WriteHeader(http.StatusNoContent)
}
