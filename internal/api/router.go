package api

import (
	"log/slog"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api/handlers"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api/middleware"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/ingestion"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/storage"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/websocket"
	"gorm.io/gorm"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB          *gorm.DB
	FileStorage storage.FileStorage
	Pipeline    *ingestion.Pipeline
	Hub         *websocket.Hub
	Logger      *slog.Logger
	// Security configuration
	APIKey         string   // API key for authentication (empty = disabled)
	WebhookSecret  string   // Shared secret for the inbound mail webhook
	AllowedOrigins []string // Allowed CORS origins
	RateLimit      int      // Requests per second (0 = use env default)
	RateBurst      int      // Burst size for rate limiter
	EnableAuth     bool     // Enable API key authentication
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Security Middleware (applied in correct order)
	// 1. Recover from panics
	e.Use(middleware.Recover())

	// 2. Security headers (applied to all responses)
	e.Use(middleware.SecureHeaders())

	// 3. CORS - Set environment variable if origins provided in config
	if len(cfg.AllowedOrigins) > 0 {
		os.Setenv("ALLOWED_ORIGINS", strings.Join(cfg.AllowedOrigins, ","))
	}
	e.Use(middleware.SecureCORS())

	// 4. Rate limiting - use RateLimiterWithConfig if custom values provided
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(float64(cfg.RateLimit), cfg.RateBurst, cfg.Logger))
	} else {
		e.Use(middleware.RateLimiter(cfg.Logger))
	}

	// 5. Request logging
	if cfg.Logger != nil {
		e.Use(middleware.RequestLogger(cfg.Logger))
	}

	// Initialize repositories
	deskRepo := repository.NewDeskRepository(cfg.DB)
	ticketRepo := repository.NewTicketRepository(cfg.DB)
	messageRepo := repository.NewMessageRepository(cfg.DB)
	attachmentRepo := repository.NewAttachmentRepository(cfg.DB, cfg.FileStorage)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB)
	ticketHandler := handlers.NewTicketHandler(ticketRepo, messageRepo, deskRepo)
	attachmentHandler := handlers.NewAttachmentHandler(attachmentRepo, messageRepo, cfg.FileStorage)
	inboundHandler := handlers.NewInboundHandler(deskRepo, cfg.Pipeline)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	// WebSocket endpoint for live ticket events
	if cfg.Hub != nil {
		wsHandler := handlers.NewWSHandler(cfg.Hub, cfg.Logger)
		e.GET("/ws", wsHandler.Connect)
	}

	// Inbound mail webhook, guarded by its own shared secret
	if cfg.WebhookSecret != "" {
		os.Setenv("WEBHOOK_SECRET", cfg.WebhookSecret)
	}
	inbound := e.Group("/api/desks/:desk_id/inbound")
	inbound.Use(middleware.WebhookAuth(cfg.Logger))
	inbound.POST("", inboundHandler.Ingest)

	// API routes
	api := e.Group("/api")

	// Apply API key authentication if enabled
	// Set API_KEY env var if provided in config
	if cfg.EnableAuth && cfg.APIKey != "" {
		os.Setenv("API_KEY", cfg.APIKey)
	}
	api.Use(middleware.APIKeyAuth(cfg.Logger))

	// Ticket routes (nested under desks)
	api.GET("/desks/:desk_id/tickets", ticketHandler.List)

	// Ticket routes (standalone)
	tickets := api.Group("/tickets")
	tickets.GET("/:id", ticketHandler.Get)
	tickets.GET("/:id/messages", ticketHandler.Messages)
	tickets.PATCH("/:id/status", ticketHandler.UpdateStatus)

	// Attachment routes
	api.GET("/messages/:message_id/attachments", attachmentHandler.List)
	api.GET("/attachments/:id/download", attachmentHandler.Download)

	return e
}
