package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/sujalbistaa/moments/internal/config"
	"github.com/sujalbistaa/moments/internal/engine"
	"github.com/sujalbistaa/moments/internal/feed"
	routes "github.com/sujalbistaa/moments/internal/http"
	"github.com/sujalbistaa/moments/internal/logging"
	"github.com/sujalbistaa/moments/internal/persona"
	"github.com/sujalbistaa/moments/internal/reply"
	"github.com/sujalbistaa/moments/internal/snapshot"
	"github.com/sujalbistaa/moments/internal/ws"
)

func main() {
	// Production sets variables directly, so a missing .env is fine.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, os.Stdout)
	if err != nil {
		slog.Error("Failed to initialise logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("No .env file found, reading from environment")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Personas and the feed
	roster, err := persona.Load(cfg.PersonasFile)
	if err != nil {
		return err
	}
	store := feed.NewStore()

	// 2. Snapshot persistence, if configured
	var saver *snapshot.Saver
	if cfg.SnapshotURL != "" {
		snap, err := snapshot.Open(ctx, cfg.SnapshotURL, cfg.SnapshotKey, logger)
		if err != nil {
			return err
		}
		defer snap.Close()

		saver = snapshot.NewSaver(logger, snap, store)
		if n, err := saver.Restore(ctx); err != nil {
			logger.Error("Failed to restore snapshot, starting empty", "error", err)
		} else if n > 0 {
			logger.Info("Restored moments from snapshot", "count", n)
		}
	}
	if store.Count() == 0 && cfg.SeedMoments {
		seed(store, roster, logger)
	}

	// 3. Reply generation and the persona engine
	canned := reply.NewCanned(roster, nil)
	generator, provider, err := reply.New(cfg.Reply(), canned, logger)
	if err != nil {
		return err
	}
	if c, ok := generator.(interface{ Close() error }); ok {
		defer c.Close()
	}

	eng := engine.New(logger, store, roster, generator, canned, cfg.Engine())
	engineCtx, cancelEngine := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		_ = eng.Run(engineCtx)
	}()

	// 4. WebSocket hub
	hub := ws.NewHub(logger)
	go hub.Run(ctx)
	store.Subscribe(hub.Publish)

	var saverDone chan error
	if saver != nil {
		saverCtx, cancelSaver := context.WithCancel(context.Background())
		defer cancelSaver()
		saverDone = make(chan error, 1)
		go func() { saverDone <- saver.Run(saverCtx) }()
		defer func() {
			cancelSaver()
			if err := <-saverDone; err != nil {
				logger.Error("Failed to write final snapshot", "error", err)
			}
		}()
	}

	// 5. Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	routes.SetupRoutes(ctx, router, &routes.Env{
		Store:    store,
		Engine:   eng,
		Logger:   logger.With("component", "http"),
		Provider: provider,
		Human:    cfg.Human(),
	}, hub, routes.RouteConfig{
		CORSOrigin:     cfg.CORSOrigin,
		AdminToken:     cfg.AdminToken,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "port", cfg.Port, "ai_provider", provider, "moments", store.Count())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			cancelEngine()
			return err
		}
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Let in-flight reactions finish, but not past the shutdown deadline.
	eng.Close()
	waited := make(chan struct{})
	go func() {
		eng.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-shutdownCtx.Done():
		logger.Warn("Gave up waiting for persona reactions")
	}
	cancelEngine()
	<-engineDone

	logger.Info("Server exiting")
	return nil
}

// seed publishes each persona's starter post, backdated by its configured age.
func seed(store *feed.Store, roster *persona.Roster, logger *slog.Logger) {
	now := time.Now()
	for _, p := range roster.All() {
		if p.Seed == nil {
			continue
		}
		if _, err := store.Seed(p.Author(), p.Seed.Content, p.Seed.Images, now.Add(-p.Seed.Age)); err != nil {
			logger.Warn("Skipping seed moment", "persona", p.ID, "error", err)
		}
	}
	logger.Info("Seeded moments", "count", store.Count())
}
