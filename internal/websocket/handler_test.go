package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/logging"
)

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://chores.example.com", "chores.example.com"},
		{"http://localhost:8080", "localhost:8080"},
		{"", ""},
	}
	for _, tt := range tests {
		got := OriginPatterns(tt.base)
		if tt.want == "" {
			if len(got) != 0 {
				t.Errorf("OriginPatterns(%q) = %v, want none", tt.base, got)
			}
			continue
		}
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("OriginPatterns(%q) = %v, want [%s]", tt.base, got, tt.want)
		}
	}
}

func TestAcceptOptionsSkipOriginOnlyForBearer(t *testing.T) {
	patterns := []string{"chores.example.com"}

	cookie := httptest.NewRequest("GET", "/ws", nil)
	cookie.AddCookie(&http.Cookie{Name: "chorequest_session", Value: "tok"})
	opts := acceptOptions(cookie, patterns)
	if opts.InsecureSkipVerify {
		t.Error("cookie request skips origin verification")
	}
	if len(opts.OriginPatterns) != 1 || opts.OriginPatterns[0] != "chores.example.com" {
		t.Errorf("OriginPatterns = %v", opts.OriginPatterns)
	}

	bearer := httptest.NewRequest("GET", "/ws", nil)
	bearer.Header.Set("Authorization", "Bearer tok")
	if !acceptOptions(bearer, patterns).InsecureSkipVerify {
		t.Error("bearer request checked against browser origins")
	}
}

func TestHandleWebSocketRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(logging.Discard())
	h := HandleWebSocket(hub, []string{"chores.example.com"}, logging.Discard())

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req.Header.Set("Origin", "https://evil.example.net")
	req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: 3, FamilyID: 1}))

	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients = %d, want 0", hub.ClientCount())
	}
}
