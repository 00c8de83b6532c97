package threading

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/mail"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
	"gorm.io/gorm"
)

// PersistenceError wraps any store failure raised while reconciling an
// email. It covers both lookup failures and write failures: neither may be
// confused with a confident "no match", and callers must not acknowledge the
// source email when they see one.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CreatedKind reports what Ingest wrote.
type CreatedKind string

const (
	// CreatedTicket means no existing conversation matched; a new ticket
	// and its first message were created.
	CreatedTicket CreatedKind = "ticket"
	// CreatedMessage means the email was appended to an existing ticket.
	CreatedMessage CreatedKind = "message"
	// CreatedDuplicate means the exact message was already stored and
	// nothing was written. Retried deliveries land here.
	CreatedDuplicate CreatedKind = "duplicate"
)

// Result describes the outcome of one ingested email.
type Result struct {
	TicketID  uint
	MessageID uint
	Created   CreatedKind
	Date      Extraction
}

// ConversationReconciler orchestrates date extraction and thread matching
// against the ticket/message store, appending to an existing ticket or
// creating a new one as a single logically-atomic operation per email.
type ConversationReconciler struct {
	db          *gorm.DB
	dates       *DateExtractor
	matcherOpts []MatcherOption
	logger      *slog.Logger

	// Per-desk serialization: two near-simultaneous deliveries of replies
	// to the same thread must not both decide "no match" and fork it.
	// Desks are independent, so no cross-desk locking.
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// ReconcilerOption customizes a ConversationReconciler.
type ReconcilerOption func(*ConversationReconciler)

// WithReconcilerLogger sets the diagnostics logger.
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *ConversationReconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDateExtractor overrides the date extractor.
func WithDateExtractor(e *DateExtractor) ReconcilerOption {
	return func(r *ConversationReconciler) {
		if e != nil {
			r.dates = e
		}
	}
}

// WithMatcherOptions passes options through to the per-transaction matcher.
func WithMatcherOptions(opts ...MatcherOption) ReconcilerOption {
	return func(r *ConversationReconciler) {
		r.matcherOpts = append(r.matcherOpts, opts...)
	}
}

// NewConversationReconciler builds a reconciler over the given database.
func NewConversationReconciler(db *gorm.DB, opts ...ReconcilerOption) *ConversationReconciler {
	r := &ConversationReconciler{
		db:     db,
		dates:  NewDateExtractor(),
		logger: slog.Default(),
		locks:  make(map[uint]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ingest reconciles one inbound email against the store: extract the
// authentic date, find the owning ticket, then append a message or create a
// fresh ticket. The whole step runs inside a transaction under a per-desk
// mutex. Any store failure surfaces as *PersistenceError and commits nothing.
func (r *ConversationReconciler) Ingest(ctx context.Context, rec *mail.EmailRecord, deskID uint) (Result, error) {
	return r.IngestWithAttachments(ctx, rec, deskID, nil)
}

// IngestWithAttachments is Ingest with already-persisted attachment rows to
// bind to the resulting message in the same transaction.
func (r *ConversationReconciler) IngestWithAttachments(ctx context.Context, rec *mail.EmailRecord, deskID uint, attachments []models.Attachment) (Result, error) {
	if rec == nil {
		return Result{}, fmt.Errorf("threading: email record required")
	}

	extraction := r.dates.Extract(rec)
	cleanID := CleanMessageID(rec.MessageID)

	lock := r.deskLock(deskID)
	lock.Lock()
	defer lock.Unlock()

	var result Result
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages := repository.NewMessageRepository(tx)
		tickets := repository.NewTicketRepository(tx)
		matcher := NewThreadMatcher(messages, tickets, r.matcherOpts...)

		// Duplicate-delivery guard: at-least-once sources (webhook
		// retries, re-observed poll cycles) may hand us the same
		// physical email twice.
		if cleanID != "" {
			exists, err := messages.ExistsWithMessageID(ctx, cleanID)
			if err != nil {
				return &PersistenceError{Op: "duplicate check", Err: err}
			}
			if exists {
				existing, err := messages.FindNewestByLookalikeMessageID(ctx, cleanID, 0)
				if err != nil {
					return &PersistenceError{Op: "duplicate lookup", Err: err}
				}
				result = Result{
					TicketID:  existing.TicketID,
					MessageID: existing.ID,
					Created:   CreatedDuplicate,
					Date:      extraction,
				}
				return nil
			}
		}

		ticketID, err := matcher.FindTicket(ctx, Candidate{
			MessageID:   rec.MessageID,
			InReplyTo:   rec.InReplyTo,
			References:  rec.References,
			Subject:     rec.Subject,
			SenderEmail: rec.SenderEmail,
		}, 0)
		if err != nil {
			return &PersistenceError{Op: "thread lookup", Err: err}
		}

		if ticketID != 0 {
			msg := r.buildMessage(rec, ticketID, cleanID, extraction)
			if err := messages.CreateWithAttachments(ctx, msg, attachments); err != nil {
				return &PersistenceError{Op: "message insert", Err: err}
			}
			if err := tickets.TouchOnCustomerReply(ctx, ticketID, extraction.Date); err != nil {
				return &PersistenceError{Op: "ticket update", Err: err}
			}
			result = Result{TicketID: ticketID, MessageID: msg.ID, Created: CreatedMessage, Date: extraction}
			return nil
		}

		ticket := &models.Ticket{
			Subject:       rec.Subject,
			Status:        models.StatusOpen,
			CustomerEmail: rec.SenderEmail,
			CustomerName:  rec.SenderName,
			DeskID:        deskID,
			CreatedAt:     extraction.Date,
			UpdatedAt:     extraction.Date,
		}
		if err := tickets.Create(ctx, ticket); err != nil {
			return &PersistenceError{Op: "ticket insert", Err: err}
		}

		msg := r.buildMessage(rec, ticket.ID, cleanID, extraction)
		if err := messages.CreateWithAttachments(ctx, msg, attachments); err != nil {
			return &PersistenceError{Op: "message insert", Err: err}
		}
		result = Result{TicketID: ticket.ID, MessageID: msg.ID, Created: CreatedTicket, Date: extraction}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	r.logger.Info("email reconciled",
		slog.Uint64("desk_id", uint64(deskID)),
		slog.Uint64("ticket_id", uint64(result.TicketID)),
		slog.String("created", string(result.Created)),
		slog.String("date_source", string(result.Date.Source)))
	return result, nil
}

// buildMessage populates a Message row from the record. Identifiers are
// stored clean-formed so later lookups compare like with like.
func (r *ConversationReconciler) buildMessage(rec *mail.EmailRecord, ticketID uint, cleanID string, extraction Extraction) *models.Message {
	return &models.Message{
		TicketID:       ticketID,
		Content:        rec.BodyText,
		ContentHTML:    rec.BodyHTML,
		Snippet:        rec.Snippet,
		SenderEmail:    rec.SenderEmail,
		SenderName:     rec.SenderName,
		IsAgent:        false,
		EmailMessageID: cleanID,
		InReplyTo:      CleanMessageID(rec.InReplyTo),
		References:     rec.References,
		CreatedAt:      extraction.Date,
	}
}

// deskLock returns the mutex serializing ingestion for one desk.
func (r *ConversationReconciler) deskLock(deskID uint) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[deskID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[deskID] = lock
	}
	return lock
}
