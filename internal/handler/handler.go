// Package handler holds the JSON HTTP handlers. Handlers decode requests,
// call the domain services with the caller's AuthContext, map service errors
// to status codes and broadcast changes to the caller's family.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/storage"
	"github.com/dukerupert/chorequest/internal/websocket"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Uploader stores an image and returns where it can be fetched.
type Uploader interface {
	Upload(ctx context.Context, prefix string, familyID int64, r io.Reader) (*storage.Object, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps err to a status. Domain errors carry a message safe for
// the client; anything else is logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, status, "internal server error")
		return
	}
	writeMessage(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// pathID parses {id} and writes 400 when it is not a number.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseIDParam(r)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// caller returns the AuthContext set by RequireAuth.
func caller(w http.ResponseWriter, r *http.Request) (auth.AuthContext, bool) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authentication required")
	}
	return ac, ok
}

// notifier broadcasts to the caller's family. A nil hub is a no-op.
type notifier struct {
	hub *websocket.Hub
}

func (n notifier) broadcast(ac auth.AuthContext, entity, action string, id int64, extra map[string]any) {
	if n.hub == nil || !ac.HasFamily() {
		return
	}
	n.hub.Broadcast(ac.FamilyID, websocket.NewMessage(entity, action, id, extra))
}

// readUpload pulls the "file" part out of a multipart form and stores it.
func readUpload(w http.ResponseWriter, r *http.Request, up Uploader, prefix string, familyID int64) (*storage.Object, error) {
	if up == nil {
		return nil, errUploadsDisabled
	}
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadBytes+(1<<20))
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, apperr.Validation("multipart field \"file\" is required")
	}
	defer file.Close()
	return up.Upload(r.Context(), prefix, familyID, file)
}

var errUploadsDisabled = errors.New("uploads are not configured")

// writeUploadError handles the storage-specific failures before falling back
// to writeError.
func writeUploadError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, errUploadsDisabled):
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, storage.ErrTooLarge):
		writeMessage(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, storage.ErrUnsupported):
		writeMessage(w, http.StatusUnsupportedMediaType, err.Error())
	default:
		writeError(w, r, logger, err)
	}
}
