package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
)

// IMAPFetcher drains a desk's IMAP mailbox. Messages are marked \Seen only
// after the handler accepted them, so a failed ingestion is naturally
// re-observed by the next poll cycle.
type IMAPFetcher struct {
	dialTimeout time.Duration
	logger      *slog.Logger
}

// IMAPFetcherOption customizes fetcher behavior.
type IMAPFetcherOption func(*IMAPFetcher)

// WithIMAPLogger overrides the diagnostics logger.
func WithIMAPLogger(logger *slog.Logger) IMAPFetcherOption {
	return func(f *IMAPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithIMAPDialTimeout overrides the socket dial timeout.
func WithIMAPDialTimeout(timeout time.Duration) IMAPFetcherOption {
	return func(f *IMAPFetcher) {
		if timeout > 0 {
			f.dialTimeout = timeout
		}
	}
}

// NewIMAPFetcher returns an IMAP fetcher ready for scheduled polling.
func NewIMAPFetcher(opts ...IMAPFetcherOption) *IMAPFetcher {
	f := &IMAPFetcher{
		dialTimeout: 10 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the fetcher identifier.
func (f *IMAPFetcher) Name() string {
	return "imap"
}

// Fetch connects to the desk's mailbox, fetches all unseen messages and
// hands each to the handler, marking it \Seen on success.
func (f *IMAPFetcher) Fetch(ctx context.Context, desk *models.Desk, handler Handler) error {
	if handler == nil {
		return errors.New("imap fetcher requires a handler")
	}
	if desk == nil || desk.Host == "" {
		return errors.New("imap fetcher requires a configured desk mailbox")
	}

	client, err := f.dial(desk)
	if err != nil {
		return fmt.Errorf("imap connect: %w", err)
	}
	defer client.Close()

	if err := client.Login(desk.Username, desk.Password).Wait(); err != nil {
		return fmt.Errorf("imap auth: %w", err)
	}

	folder := desk.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", folder, err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return fmt.Errorf("imap search: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	buffers, err := client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return fmt.Errorf("imap fetch: %w", err)
	}

	var handled int
	for _, buf := range buffers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		body := buf.FindBodySection(&imap.FetchItemBodySection{})
		if body == nil {
			continue
		}
		if err := handler.Handle(ctx, desk.ID, append([]byte(nil), body...)); err != nil {
			// Leave the message unseen; the next poll retries it.
			f.logger.Error("imap message handling failed",
				slog.Uint64("desk_id", uint64(desk.ID)),
				slog.Uint64("uid", uint64(buf.UID)),
				slog.Any("error", err))
			continue
		}
		seen := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: []imap.Flag{imap.FlagSeen}, Silent: true}
		if err := client.Store(imap.UIDSetNum(buf.UID), seen, nil).Close(); err != nil {
			f.logger.Warn("imap mark seen failed",
				slog.Uint64("desk_id", uint64(desk.ID)),
				slog.Uint64("uid", uint64(buf.UID)),
				slog.Any("error", err))
		}
		handled++
	}

	if handled > 0 {
		f.logger.Info("imap poll complete",
			slog.Uint64("desk_id", uint64(desk.ID)),
			slog.Int("messages", handled))
	}

	if err := client.Logout().Wait(); err != nil {
		return fmt.Errorf("imap logout: %w", err)
	}
	return nil
}

func (f *IMAPFetcher) dial(desk *models.Desk) (*imapclient.Client, error) {
	port := desk.Port
	if port == 0 {
		if desk.UseTLS {
			port = 993
		} else {
			port = 143
		}
	}
	addr := fmt.Sprintf("%s:%d", desk.Host, port)
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: f.dialTimeout}}
	if desk.UseTLS {
		return imapclient.DialTLS(addr, opts)
	}
	return imapclient.DialInsecure(addr, opts)
}
