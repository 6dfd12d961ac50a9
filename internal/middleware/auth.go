package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

// SessionCookieName is the cookie holding the session token for browser clients.
const SessionCookieName = "chorequest_session"

// TimezoneHeader carries the caller's IANA zone. Calendar dates are derived in it.
const TimezoneHeader = "X-Timezone"

// RequireAuth resolves the caller from a Bearer token or the session cookie
// and populates AuthContext. Bearer tokens are only honored while the session
// they were issued with still exists.
func RequireAuth(sessions *store.SessionStore, profiles *store.ProfileStore, tokens *auth.TokenIssuer, defaultLoc *time.Location) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var sess *model.Session
			if bearer, ok := bearerToken(r); ok {
				claims, err := tokens.Parse(bearer)
				if err != nil {
					unauthorized(w)
					return
				}
				sess, err = sessions.GetByID(ctx, claims.SessionID)
				if err != nil || sess == nil {
					unauthorized(w)
					return
				}
				if uid, _ := claims.UserID(); uid != sess.UserID {
					unauthorized(w)
					return
				}
			} else {
				cookie, err := r.Cookie(SessionCookieName)
				if err != nil || cookie.Value == "" {
					unauthorized(w)
					return
				}
				sess, err = sessions.GetByToken(ctx, cookie.Value)
				if err != nil || sess == nil {
					unauthorized(w)
					return
				}
			}

			p, err := profiles.GetByID(ctx, sess.UserID)
			if err != nil || p == nil {
				unauthorized(w)
				return
			}

			ac := auth.FromProfile(p, sess.ID, requestLocation(r, defaultLoc))
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(ctx, ac)))
		})
	}
}

// RequireRoot allows family roots and super roots.
func RequireRoot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok || (!ac.IsRoot && !ac.IsSuperRoot) {
			writeError(w, http.StatusForbidden, "root access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// requestLocation honors a valid X-Timezone header and falls back to def.
func requestLocation(r *http.Request, def *time.Location) *time.Location {
	if tz := strings.TrimSpace(r.Header.Get(TimezoneHeader)); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return def
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "authentication required")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
