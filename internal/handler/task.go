package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/task"
	"github.com/dukerupert/chorequest/internal/websocket"
)

type TaskHandler struct {
	tasks    *task.Manager
	uploader Uploader
	notifier
	logger *slog.Logger
}

// NewTaskHandler wires the task endpoints. uploader may be nil; evidence can
// then only be attached by URL.
func NewTaskHandler(tasks *task.Manager, uploader Uploader, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, uploader: uploader, notifier: notifier{hub}, logger: logger}
}

// taskChanged broadcasts a task event tagged with its assignee.
func (h *TaskHandler) taskChanged(ac auth.AuthContext, action string, t *model.Task) {
	h.broadcast(ac, "task", action, t.ID, map[string]any{"assigned_to": t.AssignedTo})
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	f := model.TaskFilter{
		Status:   model.TaskStatus(q.Get("status")),
		Type:     model.TaskType(q.Get("type")),
		TaskDate: q.Get("date"),
		GroupKey: q.Get("group_key"),
	}
	if v := q.Get("assigned_to"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid assigned_to")
			return
		}
		f.AssignedTo = &id
	}

	tasks, err := h.tasks.List(r.Context(), ac, f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.tasks.Get(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	var in task.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	t, err := h.tasks.Create(r.Context(), ac, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.taskChanged(ac, "created", t)
	writeJSON(w, http.StatusCreated, t)
}

// CreateRecurring creates a weekly or monthly batch. The response is the
// aggregate parent followed by its daily children.
func (h *TaskHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		task.CreateInput
		Type model.TaskType `json:"type"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	tasks, err := h.tasks.CreateRecurring(r.Context(), ac, req.CreateInput, req.Type)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.taskChanged(ac, "created", &tasks[0])
	writeJSON(w, http.StatusCreated, tasks)
}

func (h *TaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.tasks.Start(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.taskChanged(ac, "started", t)
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, parent, err := h.tasks.Complete(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.taskChanged(ac, "completed", t)
	if parent != nil {
		h.taskChanged(ac, "progressed", parent)
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": t, "parent": parent})
}

func (h *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.tasks.Approve(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.taskChanged(ac, "approved", res.Task)
	if res.Parent != nil {
		h.taskChanged(ac, "progressed", res.Parent)
	}
	h.broadcast(ac, "profile", "updated", res.Task.AssignedTo, nil)
	for _, b := range res.Bonuses {
		h.broadcast(ac, "milestone", "granted", res.Task.AssignedTo, map[string]any{
			"period": b.Period, "coins": b.Coins, "xp": b.XP,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.tasks.Reject(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.taskChanged(ac, "rejected", t)
	writeJSON(w, http.StatusOK, t)
}

// Evidence attaches a photo. A multipart body with a "file" part is stored
// in the bucket; a JSON body {"url": ...} records an existing URL.
func (h *TaskHandler) Evidence(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var url string
	if isMultipart(r) {
		obj, err := readUpload(w, r, h.uploader, "evidence", ac.FamilyID)
		if err != nil {
			writeUploadError(w, r, h.logger, err)
			return
		}
		url = obj.URL
	} else {
		var req struct {
			URL string `json:"url"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		url = req.URL
	}

	t, err := h.tasks.SetEvidence(r.Context(), ac, id, url)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.taskChanged(ac, "evidence", t)
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := h.tasks.Delete(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "task", "deleted", id, map[string]any{"removed": n})
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *TaskHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	n, failures, err := h.tasks.DeleteMultiple(r.Context(), ac, req.IDs)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if failures == nil {
		failures = []task.DeleteFailure{}
	}
	if n > 0 {
		h.broadcast(ac, "task", "deleted", 0, map[string]any{"removed": n})
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n, "failed": failures})
}

// Limits reports the caller's usage against each window's caps.
func (h *TaskHandler) Limits(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	usage, err := h.tasks.Usage(r.Context(), ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (h *TaskHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	var tpl model.TaskTemplate
	if !decodeJSON(w, r, &tpl) {
		return
	}
	created, err := h.tasks.CreateTemplate(r.Context(), ac, tpl)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "template", "created", created.ID, nil)
	writeJSON(w, http.StatusCreated, created)
}

func (h *TaskHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	tpls, err := h.tasks.ListTemplates(r.Context(), ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if tpls == nil {
		tpls = []model.TaskTemplate{}
	}
	writeJSON(w, http.StatusOK, tpls)
}

func (h *TaskHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	ac, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.tasks.DeleteTemplate(r.Context(), ac, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac, "template", "deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
