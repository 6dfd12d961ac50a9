package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/family"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/websocket"
)

type FamilyHandler struct {
	registry *family.Registry
	notifier
	logger *slog.Logger
}

func NewFamilyHandler(registry *family.Registry, hub *websocket.Hub, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{registry: registry, notifier: notifier{hub}, logger: logger}
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	var req family.CreateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := h.registry.Create(r.Context(), ac, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	f, err := h.registry.Get(r.Context(), ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FamilyHandler) Join(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := h.registry.JoinByCode(r.Context(), ac, req.Code)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.announceJoin(ac, f)
	writeJSON(w, http.StatusOK, f)
}

func (h *FamilyHandler) Elevate(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := h.registry.ElevateWithRootCode(r.Context(), ac, req.Code)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.announceJoin(ac, f)
	writeJSON(w, http.StatusOK, f)
}

// announceJoin notifies the family the caller now belongs to. The
// AuthContext predates the join, so the family id comes from f.
func (h *FamilyHandler) announceJoin(ac auth.AuthContext, f *model.Family) {
	ac.FamilyID = f.ID
	h.broadcast(ac, "member", "joined", ac.UserID, nil)
}

func (h *FamilyHandler) Members(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	members, err := h.registry.Members(r.Context(), ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if members == nil {
		members = []model.Profile{}
	}
	writeJSON(w, http.StatusOK, members)
}

// SetRole handles PUT /api/families/members/{id}/role with {"role": "parent"|"child"}.
func (h *FamilyHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Role model.Role `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.registry.SetRole(r.Context(), ac, id, req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "profile", "updated", p.ID, nil)
	writeJSON(w, http.StatusOK, p)
}

// SetRoot handles PUT /api/admin/roots/{id} with {"is_root": bool}.
func (h *FamilyHandler) SetRoot(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		IsRoot bool `json:"is_root"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.registry.SetRoot(r.Context(), ac, id, req.IsRoot)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
