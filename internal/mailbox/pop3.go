package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/knadh/go-pop3"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
)

// POP3Fetcher drains a desk's POP3 mailbox. POP3 has no seen flag, so
// messages are deleted after the handler accepted them; a failed ingestion
// leaves the message on the server for the next poll.
type POP3Fetcher struct {
	dialTimeout time.Duration
	logger      *slog.Logger
}

// POP3FetcherOption customizes fetcher behavior.
type POP3FetcherOption func(*POP3Fetcher)

// WithPOP3Logger overrides the diagnostics logger.
func WithPOP3Logger(logger *slog.Logger) POP3FetcherOption {
	return func(f *POP3Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithPOP3DialTimeout overrides the socket dial timeout.
func WithPOP3DialTimeout(timeout time.Duration) POP3FetcherOption {
	return func(f *POP3Fetcher) {
		if timeout > 0 {
			f.dialTimeout = timeout
		}
	}
}

// NewPOP3Fetcher returns a POP3 fetcher ready for scheduled polling.
func NewPOP3Fetcher(opts ...POP3FetcherOption) *POP3Fetcher {
	f := &POP3Fetcher{
		dialTimeout: 10 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the fetcher identifier.
func (f *POP3Fetcher) Name() string {
	return "pop3"
}

// Fetch connects to the desk's mailbox and hands every message to the
// handler, deleting each one on success.
func (f *POP3Fetcher) Fetch(ctx context.Context, desk *models.Desk, handler Handler) error {
	if handler == nil {
		return errors.New("pop3 fetcher requires a handler")
	}
	if desk == nil || desk.Host == "" {
		return errors.New("pop3 fetcher requires a configured desk mailbox")
	}

	port := desk.Port
	if port == 0 {
		if desk.UseTLS {
			port = 995
		} else {
			port = 110
		}
	}

	client := pop3.New(pop3.Opt{
		Host:        desk.Host,
		Port:        port,
		TLSEnabled:  desk.UseTLS,
		DialTimeout: f.dialTimeout,
	})

	conn, err := client.NewConn()
	if err != nil {
		return fmt.Errorf("pop3 connect: %w", err)
	}
	defer func() {
		if err := conn.Quit(); err != nil {
			f.logger.Warn("pop3 quit failed", slog.Any("error", err))
		}
	}()

	if err := conn.Auth(desk.Username, desk.Password); err != nil {
		return fmt.Errorf("pop3 auth: %w", err)
	}

	msgs, err := conn.Uidl(0)
	if err != nil {
		return fmt.Errorf("pop3 uidl: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	var handled int
	for _, meta := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		payload, err := conn.RetrRaw(meta.ID)
		if err != nil {
			return fmt.Errorf("pop3 retr %d: %w", meta.ID, err)
		}
		if err := handler.Handle(ctx, desk.ID, payload.Bytes()); err != nil {
			// Leave the message on the server; the next poll retries it.
			f.logger.Error("pop3 message handling failed",
				slog.Uint64("desk_id", uint64(desk.ID)),
				slog.Int("msg_id", meta.ID),
				slog.Any("error", err))
			continue
		}
		if err := conn.Dele(meta.ID); err != nil {
			f.logger.Warn("pop3 delete failed",
				slog.Uint64("desk_id", uint64(desk.ID)),
				slog.Int("msg_id", meta.ID),
				slog.Any("error", err))
		}
		handled++
	}

	if handled > 0 {
		f.logger.Info("pop3 poll complete",
			slog.Uint64("desk_id", uint64(desk.ID)),
			slog.Int("messages", handled))
	}
	return nil
}
