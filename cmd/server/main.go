package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/config"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/database"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/ingestion"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/logger"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/mailbox"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
	smtpedge "github.com/welldanyogia/webrana-helpdesk-backend/internal/smtp"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/storage"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/threading"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.LoadWithValidation()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	security := logger.NewSecurityLogger()

	// Database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database ready")

	// File storage
	fileStorage, err := storage.NewLocalStorage(cfg.AttachmentStoragePath)
	if err != nil {
		return fmt.Errorf("failed to initialize file storage: %w", err)
	}

	// WebSocket hub
	hub := websocket.NewHub(log)
	go hub.Run()

	// Threading core and ingestion pipeline
	reconciler := threading.NewConversationReconciler(db,
		threading.WithReconcilerLogger(log))
	pipeline := ingestion.NewPipeline(&ingestion.PipelineConfig{
		Reconciler:  reconciler,
		FileStorage: fileStorage,
		Notifier:    hub,
		Logger:      log,
		Security:    security,
	})

	deskRepo := repository.NewDeskRepository(db)

	// Mailbox polling
	var scheduler *mailbox.PollingScheduler
	if cfg.PollingEnabled {
		imapFetcher := mailbox.NewIMAPFetcher(mailbox.WithIMAPLogger(log))
		pop3Fetcher := mailbox.NewPOP3Fetcher(mailbox.WithPOP3Logger(log))
		handler := mailbox.HandlerFunc(func(ctx context.Context, deskID uint, raw []byte) error {
			_, err := pipeline.HandleIncoming(ctx, bytes.NewReader(raw), deskID)
			return err
		})
		scheduler = mailbox.NewPollingScheduler(imapFetcher, pop3Fetcher, handler, log)

		desks, err := deskRepo.ListPollable(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list pollable desks: %w", err)
		}
		for _, desk := range desks {
			if err := scheduler.Start(desk); err != nil {
				log.Error("failed to schedule desk",
					slog.Uint64("desk_id", uint64(desk.ID)),
					slog.Any("error", err))
			}
		}
		scheduler.Run()
		log.Info("mailbox polling started", slog.Int("desks", len(desks)))
	}

	// HTTP API
	router := api.NewRouter(&api.RouterConfig{
		DB:             db,
		FileStorage:    fileStorage,
		Pipeline:       pipeline,
		Hub:            hub,
		Logger:         log,
		APIKey:         cfg.APIKey,
		WebhookSecret:  cfg.WebhookSecret,
		AllowedOrigins: splitOrigins(cfg.AllowedOrigins),
		RateLimit:      int(cfg.RateLimitRequests),
		RateBurst:      cfg.RateLimitBurst,
		EnableAuth:     cfg.APIKey != "",
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		log.Info("starting HTTP server", slog.String("addr", addr))
		if err := router.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", slog.Any("error", err))
		}
	}()

	// SMTP inbound edge
	smtpBackend := smtpedge.NewBackend(&smtpedge.BackendConfig{
		DeskRepo: deskRepo,
		Pipeline: pipeline,
		Logger:   log,
	})
	smtpCfg := smtpedge.LoadServerConfigFromEnv()
	smtpCfg.Addr = fmt.Sprintf(":%d", cfg.SMTPPort)
	smtpServer := smtpedge.NewSecureServer(smtpBackend, smtpCfg)

	go func() {
		log.Info("starting SMTP server", slog.String("addr", smtpServer.Addr))
		if err := smtpServer.ListenAndServe(); err != nil {
			log.Error("SMTP server error", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	if scheduler != nil {
		scheduler.StopAll()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error", slog.Any("error", err))
	}
	if err := smtpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("SMTP shutdown error", slog.Any("error", err))
	}

	log.Info("server stopped")
	return nil
}

func splitOrigins(origins string) []string {
	if origins == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
