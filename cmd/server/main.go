// agentdock - real-time relay gateway for containerized AI coding agents
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/forepath/agentdock/internal/api"
	"github.com/forepath/agentdock/internal/auth"
	"github.com/forepath/agentdock/internal/config"
	"github.com/forepath/agentdock/internal/container"
	"github.com/forepath/agentdock/internal/gateway"
	"github.com/forepath/agentdock/internal/middleware"
	"github.com/forepath/agentdock/internal/provider"
	"github.com/forepath/agentdock/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	statsClient, err := container.NewDockerStatsClient()
	if err != nil {
		slog.Error("Failed to initialize Docker client", "error", err)
		os.Exit(1)
	}

	// Register the runtime providers. Registration happens once here;
	// resolution happens per chat turn.
	providers := provider.NewRegistry()
	providers.Register(provider.NewClaudeProvider(statsClient.Client(), cfg.ClaudeModel))
	providers.Register(provider.NewOpenCodeProvider(statsClient.Client(), cfg.OpenCodeModel))

	// Wire the gateway core.
	registry := gateway.NewSessionRegistry()
	verifier := auth.NewBcryptVerifier()
	wsHandler := gateway.NewHandler(repo, verifier, registry, cfg.FrontendURL, cfg.IsDevelopment())

	relay := gateway.NewChatRelay(repo, providers, registry, wsHandler, cfg.HistoryPageSize, logger)
	telemetry := gateway.NewTelemetryBroadcaster(statsClient, registry, wsHandler, cfg.StatsInterval)
	defer telemetry.Close()

	wsHandler.SetRelay(relay)
	wsHandler.SetTelemetry(telemetry)

	// Initialize HTTP handlers.
	healthHandler := api.NewHealthHandler(repo)
	agentHandler := api.NewAgentHandler(repo, providers)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	// A configured frontend locks CORS down to it; development keeps the
	// open default.
	corsOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		corsOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(corsOrigins))

	healthHandler.RegisterHealth(r)
	agentHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/session", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // long-lived WebSocket connections
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}
