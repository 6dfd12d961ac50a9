package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/config"
	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/handler"
	"github.com/dukerupert/chorequest/internal/logging"
	"github.com/dukerupert/chorequest/internal/server"
	"github.com/dukerupert/chorequest/internal/storage"
)

const cleanupInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var verifier auth.Verifier
	if cfg.Firebase.Enabled() {
		creds, err := firebaseCredentials(cfg.Firebase.CredentialsJSON)
		if err != nil {
			logger.Error("failed to read firebase credentials", "error", err)
			os.Exit(1)
		}
		v, err := auth.NewFirebaseVerifier(ctx, creds, cfg.Firebase.ProjectID)
		if err != nil {
			logger.Error("failed to init firebase", "error", err)
			os.Exit(1)
		}
		verifier = v
		logger.Info("firebase sign-in enabled", "project", cfg.Firebase.ProjectID)
	}

	var uploader handler.Uploader
	if cfg.S3.Enabled() {
		uploader = storage.New(cfg.S3, logger.With("component", "storage"))
		logger.Info("image uploads enabled", "bucket", cfg.S3.Bucket)
	} else {
		logger.Info("image uploads disabled, no bucket configured")
	}

	srv := server.New(db, cfg, verifier, uploader, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go runCleanup(ctx, srv, logger)

	go func() {
		logger.Info("chorequest running", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// firebaseCredentials accepts either inline JSON or a path to a JSON file.
func firebaseCredentials(v string) (string, error) {
	if strings.HasPrefix(strings.TrimSpace(v), "{") {
		return v, nil
	}
	b, err := os.ReadFile(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// runCleanup drops expired sessions and stale rate-limit windows.
func runCleanup(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := srv.SessionStore().DeleteExpired(ctx)
			if err != nil {
				logger.Error("session cleanup", "error", err)
			} else if n > 0 {
				logger.Info("expired sessions removed", "count", n)
			}
			if n := srv.RateLimiter().Cleanup(); n > 0 {
				logger.Debug("rate limit windows pruned", "count", n)
			}
		}
	}
}
