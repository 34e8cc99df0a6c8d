package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wolfman30/kb-chat-portal/cmd/mainconfig"
	"github.com/wolfman30/kb-chat-portal/internal/api/router"
	appconfig "github.com/wolfman30/kb-chat-portal/internal/config"
	"github.com/wolfman30/kb-chat-portal/internal/conversation"
	httpmiddleware "github.com/wolfman30/kb-chat-portal/internal/http/middleware"
	"github.com/wolfman30/kb-chat-portal/internal/observability/metrics"
	"github.com/wolfman30/kb-chat-portal/internal/webchat"
	"github.com/wolfman30/kb-chat-portal/pkg/logging"
)

const sessionSweepInterval = 10 * time.Minute

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting kb-chat-portal server",
		"env", cfg.Env,
		"port", cfg.Port,
		"knowledge_base_id", cfg.KnowledgeBaseID,
		"model", cfg.BedrockModelID,
	)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	kb := mainconfig.NewKnowledgeBaseClient(awsCfg, cfg)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	app := newApp(cfg, kb, logger, prometheus.NewRegistry())
	go app.sessions.Run(bgCtx, sessionSweepInterval)
	go app.limiter.Run(bgCtx)

	// Create HTTP server. No write timeout: WebSocket connections are long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopBackground()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler  http.Handler
	sessions *conversation.SessionRegistry
	limiter  *httpmiddleware.RateLimiter
}

// newApp wires the chat service, session registry and router around kb.
func newApp(cfg *appconfig.Config, kb conversation.KnowledgeBaseClient, logger *logging.Logger, reg *prometheus.Registry) *app {
	chatMetrics := metrics.NewChatMetrics(reg)
	service := conversation.NewService(kb, logger, mainconfig.ServiceOptions(cfg, chatMetrics)...)
	sessions := conversation.NewSessionRegistry(cfg.SessionIdleTTL, chatMetrics)
	limiter := httpmiddleware.NewRateLimiter(cfg.ChatRateLimitRPS, cfg.ChatRateLimitBurst)

	onRateLimited := func(*http.Request) {
		chatMetrics.ObserveRejected("rate_limited")
	}

	chat := webchat.NewHandler(service, sessions, webchat.Options{
		Title:         cfg.ChatTitle,
		Subtitle:      cfg.ChatSubtitle,
		RateLimiter:   limiter,
		OnRateLimited: onRateLimited,
	}, logger)

	handler := router.New(&router.Config{
		Logger:             logger,
		Chat:               chat,
		Sessions:           sessions,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		OnRateLimited:      onRateLimited,
	})

	return &app{handler: handler, sessions: sessions, limiter: limiter}
}
