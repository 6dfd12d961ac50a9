package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/shop"
	"github.com/dukerupert/chorequest/internal/websocket"
)

type RewardHandler struct {
	shop *shop.Shop
	notifier
	logger *slog.Logger
}

func NewRewardHandler(s *shop.Shop, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{shop: s, notifier: notifier{hub}, logger: logger}
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	var req model.Reward
	if !decodeJSON(w, r, &req) {
		return
	}
	reward, err := h.shop.Create(r.Context(), ac, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "reward", "created", reward.ID, nil)
	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	rewards, err := h.shop.List(r.Context(), ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req model.Reward
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = id
	reward, err := h.shop.Update(r.Context(), ac, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "reward", "updated", id, nil)
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.shop.Delete(r.Context(), ac, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "reward", "deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RewardHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.shop.Purchase(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "reward", "purchased", id, map[string]any{"user_id": ac.UserID})
	writeJSON(w, http.StatusCreated, res)
}

func (h *RewardHandler) History(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	receipts, err := h.shop.History(r.Context(), ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if receipts == nil {
		receipts = []model.UserReward{}
	}
	writeJSON(w, http.StatusOK, receipts)
}
