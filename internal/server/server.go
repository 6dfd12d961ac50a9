package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/config"
	"github.com/dukerupert/chorequest/internal/family"
	"github.com/dukerupert/chorequest/internal/handler"
	"github.com/dukerupert/chorequest/internal/limit"
	"github.com/dukerupert/chorequest/internal/loot"
	"github.com/dukerupert/chorequest/internal/middleware"
	"github.com/dukerupert/chorequest/internal/milestone"
	"github.com/dukerupert/chorequest/internal/profile"
	"github.com/dukerupert/chorequest/internal/shop"
	"github.com/dukerupert/chorequest/internal/store"
	"github.com/dukerupert/chorequest/internal/task"
	ws "github.com/dukerupert/chorequest/internal/websocket"
)

// Auth endpoints allow this many attempts per address per minute.
const authAttemptsPerMinute = 10

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	authH       *handler.AuthHandler
	profileH    *handler.ProfileHandler
	familyH     *handler.FamilyHandler
	taskH       *handler.TaskHandler
	chestH      *handler.ChestHandler
	rewardH     *handler.RewardHandler
	stores      *store.Stores
	tokens      *auth.TokenIssuer
	timezone    *time.Location
	rateLimiter *middleware.RateLimiter
	tasks       *task.Manager
	origins     []string
	logger      *slog.Logger
}

// New wires services and handlers. verifier and uploader are optional; pass
// nil to disable federated sign-in or image uploads.
func New(db *sql.DB, cfg config.Config, verifier auth.Verifier, uploader handler.Uploader, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	stores := store.New(db)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, store.SessionTTL)

	profiles := profile.NewService(db, logger)
	registry := family.NewRegistry(db, logger)
	milestones := milestone.New(db, cfg.Policy.Milestones, logger)
	tasks := task.NewManager(db, cfg.Policy, limit.New(cfg.Policy.Limits), milestones, logger)
	engine := loot.NewEngine(db, cfg.Policy.Loot, logger)
	rewards := shop.New(db, logger)

	secure := strings.HasPrefix(cfg.BaseURL, "https://")
	timezone := cfg.Timezone
	if timezone == nil {
		timezone = time.UTC
	}

	return &Server{
		db:          db,
		hub:         hub,
		authH:       handler.NewAuthHandler(profiles, stores.Sessions, tokens, verifier, secure, logger.With("component", "auth")),
		profileH:    handler.NewProfileHandler(profiles, hub, logger.With("component", "profile_handler")),
		familyH:     handler.NewFamilyHandler(registry, hub, logger.With("component", "family_handler")),
		taskH:       handler.NewTaskHandler(tasks, uploader, hub, logger.With("component", "task_handler")),
		chestH:      handler.NewChestHandler(engine, uploader, hub, logger.With("component", "chest_handler")),
		rewardH:     handler.NewRewardHandler(rewards, hub, logger.With("component", "reward_handler")),
		stores:      stores,
		tokens:      tokens,
		timezone:    timezone,
		rateLimiter: middleware.NewRateLimiter(),
		tasks:       tasks,
		origins:     ws.OriginPatterns(cfg.BaseURL),
		logger:      logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.stores.Sessions
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// TaskManager exposes the task manager, whose clock tests replace.
func (s *Server) TaskManager() *task.Manager {
	return s.tasks
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/firebase", s.rateLimitedHandler(s.authH.Firebase))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.stores.Sessions, s.stores.Profiles, s.tokens, s.timezone)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status = "database unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	return middleware.RateLimit(s.rateLimiter, middleware.ByIP, authAttemptsPerMinute, time.Minute)(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)

	// Profile
	mux.HandleFunc("GET /api/me", s.profileH.Me)
	mux.HandleFunc("PATCH /api/me", s.profileH.UpdateMe)
	mux.HandleFunc("POST /api/profiles/{id}/reset", s.profileH.ResetStats)
	mux.HandleFunc("GET /api/leaderboard", s.profileH.Leaderboard)

	// Family
	mux.HandleFunc("GET /api/families", s.familyH.Get)
	mux.HandleFunc("POST /api/families", s.familyH.Create)
	mux.HandleFunc("POST /api/families/join", s.familyH.Join)
	mux.HandleFunc("POST /api/families/elevate", s.familyH.Elevate)
	mux.HandleFunc("GET /api/families/members", s.familyH.Members)
	mux.HandleFunc("PUT /api/families/members/{id}/role", s.familyH.SetRole)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("POST /api/tasks/recurring", s.taskH.CreateRecurring)
	mux.HandleFunc("POST /api/tasks/batch-delete", s.taskH.BatchDelete)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)
	mux.HandleFunc("POST /api/tasks/{id}/start", s.taskH.Start)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.taskH.Complete)
	mux.HandleFunc("POST /api/tasks/{id}/approve", s.taskH.Approve)
	mux.HandleFunc("POST /api/tasks/{id}/reject", s.taskH.Reject)
	mux.HandleFunc("POST /api/tasks/{id}/evidence", s.taskH.Evidence)
	mux.HandleFunc("GET /api/limits", s.taskH.Limits)

	// Templates
	mux.HandleFunc("GET /api/templates", s.taskH.ListTemplates)
	mux.HandleFunc("POST /api/templates", s.taskH.CreateTemplate)
	mux.HandleFunc("DELETE /api/templates/{id}", s.taskH.DeleteTemplate)

	// Chests
	mux.HandleFunc("GET /api/chests", s.chestH.List)
	mux.HandleFunc("POST /api/chests", s.chestH.Create)
	mux.HandleFunc("PUT /api/chests/{id}", s.chestH.Update)
	mux.HandleFunc("DELETE /api/chests/{id}", s.chestH.Delete)
	mux.HandleFunc("POST /api/chests/{id}/image", s.chestH.Image)
	mux.HandleFunc("POST /api/chests/{id}/purchase", s.chestH.Purchase)
	mux.HandleFunc("GET /api/user-chests", s.chestH.Owned)
	mux.HandleFunc("POST /api/user-chests/{id}/open", s.chestH.Open)

	// Rewards shop
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.HandleFunc("POST /api/rewards", s.rewardH.Create)
	mux.HandleFunc("PUT /api/rewards/{id}", s.rewardH.Update)
	mux.HandleFunc("DELETE /api/rewards/{id}", s.rewardH.Delete)
	mux.HandleFunc("POST /api/rewards/{id}/purchase", s.rewardH.Purchase)
	mux.HandleFunc("GET /api/purchases", s.rewardH.History)

	// Admin
	mux.Handle("DELETE /api/admin/accounts", middleware.RequireRoot(http.HandlerFunc(s.profileH.DeleteAccount)))
	mux.Handle("PUT /api/admin/roots/{id}", middleware.RequireRoot(http.HandlerFunc(s.familyH.SetRoot)))

	// Realtime feed
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.origins, s.logger.With("component", "websocket")))
}
