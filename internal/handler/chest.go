package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorequest/internal/loot"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/websocket"
)

type ChestHandler struct {
	engine   *loot.Engine
	uploader Uploader
	notifier
	logger *slog.Logger
}

func NewChestHandler(engine *loot.Engine, uploader Uploader, hub *websocket.Hub, logger *slog.Logger) *ChestHandler {
	return &ChestHandler{engine: engine, uploader: uploader, notifier: notifier{hub}, logger: logger}
}

func (h *ChestHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	chests, err := h.engine.ListChests(r.Context(), ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if chests == nil {
		chests = []model.Chest{}
	}
	writeJSON(w, http.StatusOK, chests)
}

func (h *ChestHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	var c model.Chest
	if !decodeJSON(w, r, &c) {
		return
	}
	created, err := h.engine.CreateChest(r.Context(), ac, c)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "chest", "created", created.ID, nil)
	writeJSON(w, http.StatusCreated, created)
}

func (h *ChestHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var c model.Chest
	if !decodeJSON(w, r, &c) {
		return
	}
	c.ID = id
	updated, err := h.engine.UpdateChest(r.Context(), ac, c)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "chest", "updated", id, nil)
	writeJSON(w, http.StatusOK, updated)
}

func (h *ChestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeleteChest(r.Context(), ac, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "chest", "deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Image uploads chest artwork from a multipart "file" part.
func (h *ChestHandler) Image(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	obj, err := readUpload(w, r, h.uploader, "chests", ac.FamilyID)
	if err != nil {
		writeUploadError(w, r, h.logger, err)
		return
	}
	c, err := h.engine.SetImage(r.Context(), ac, id, obj.URL)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "chest", "updated", id, nil)
	writeJSON(w, http.StatusOK, c)
}

func (h *ChestHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	uc, err := h.engine.Purchase(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "profile", "updated", ac.UserID, nil)
	writeJSON(w, http.StatusCreated, uc)
}

func (h *ChestHandler) Owned(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	owned, err := h.engine.ListOwned(r.Context(), ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if owned == nil {
		owned = []model.UserChest{}
	}
	writeJSON(w, http.StatusOK, owned)
}

func (h *ChestHandler) Open(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.engine.Open(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "chest", "opened", id, map[string]any{"user_id": ac.UserID, "rarity": res.Item.Rarity})
	h.broadcast(ac, "profile", "updated", ac.UserID, nil)
	writeJSON(w, http.StatusOK, res)
}
