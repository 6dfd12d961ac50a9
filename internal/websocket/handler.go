package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/chorequest/internal/auth"
)

// OriginPatterns returns the host patterns browsers may connect from,
// derived from the public base URL.
func OriginPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// acceptOptions enforces the origin check for cookie sessions. Requests
// carrying a bearer token skip it: browsers cannot set that header on a
// websocket handshake, and RequireAuth never falls back to the cookie once
// one is present.
func acceptOptions(r *http.Request, originPatterns []string) *ws.AcceptOptions {
	if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		return &ws.AcceptOptions{InsecureSkipVerify: true}
	}
	return &ws.AcceptOptions{OriginPatterns: originPatterns}
}

// HandleWebSocket upgrades an authenticated request and subscribes the
// connection to its family's change feed.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if !ac.HasFamily() {
			http.Error(w, "join a family first", http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, acceptOptions(r, originPatterns))
		if err != nil {
			logger.Warn("websocket accept", "error", err, "user_id", ac.UserID)
			return
		}

		NewClient(hub, conn, ac.FamilyID, ac.UserID).Run(r.Context())
	}
}
