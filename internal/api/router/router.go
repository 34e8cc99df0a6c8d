package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/kb-chat-portal/internal/conversation"
	httpmiddleware "github.com/wolfman30/kb-chat-portal/internal/http/middleware"
	"github.com/wolfman30/kb-chat-portal/internal/webchat"
	"github.com/wolfman30/kb-chat-portal/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Chat               *webchat.Handler
	Sessions           *conversation.SessionRegistry
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// RateLimiter guards the endpoints that trigger a knowledge-base call.
	// Nil disables limiting.
	RateLimiter   *httpmiddleware.RateLimiter
	OnRateLimited func(*http.Request)
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.Chat == nil {
		panic("router: chat handler is required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.Sessions))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Get("/", cfg.Chat.HandlePage)
	r.Get("/api/history", cfg.Chat.HandleHistory)
	// Socket messages are charged one by one inside the handler.
	r.Get("/ws", cfg.Chat.HandleWebSocket)

	r.Group(func(turns chi.Router) {
		if cfg.RateLimiter != nil {
			turns.Use(httpmiddleware.RateLimit(cfg.RateLimiter, cfg.OnRateLimited))
		}
		turns.Post("/chat", cfg.Chat.HandleSubmit)
		turns.Post("/api/chat", cfg.Chat.HandleMessage)
	})

	return r
}

func healthHandler(sessions *conversation.SessionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}
		if sessions != nil {
			resp["sessions"] = sessions.Len()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
