// Package mailbox polls remote desk mailboxes (IMAP/POP3) and streams raw
// messages into the ingestion pipeline on a per-desk schedule.
package mailbox

import (
	"context"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
)

// Handler receives each fetched raw message. A nil return acknowledges the
// message to the source (mark seen / delete); an error leaves it in place so
// the next poll retries it.
type Handler interface {
	Handle(ctx context.Context, deskID uint, raw []byte) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, deskID uint, raw []byte) error

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, deskID uint, raw []byte) error {
	return f(ctx, deskID, raw)
}

// Fetcher implementations (IMAP, POP3) drain a desk's mailbox once, handing
// every new message to the handler.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, desk *models.Desk, handler Handler) error
}

// FetcherFor resolves the fetcher for a desk's configured protocol.
func FetcherFor(desk *models.Desk, imap *IMAPFetcher, pop3 *POP3Fetcher) Fetcher {
	if desk.Protocol == models.ProtocolPOP3 {
		return pop3
	}
	return imap
}
