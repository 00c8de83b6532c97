// Package ingestion is the edge that turns a raw inbound email into ticket
// state: MIME decode, reconcile, then side effects. Both the mailbox pollers
// and the inbound webhook funnel through it.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	seclog "github.com/welldanyogia/webrana-helpdesk-backend/internal/logger"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/mail"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/storage"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/threading"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/validator"
)

// Notifier receives ticket events after a successful ingestion. Implemented
// by the websocket hub; safe side effects only, ingestion has already
// committed when it runs.
type Notifier interface {
	NotifyTicketEvent(deskID uint, event string, ticketID, messageID uint)
}

// reconciler is the threading entry point the pipeline drives.
type reconciler interface {
	IngestWithAttachments(ctx context.Context, rec *mail.EmailRecord, deskID uint, attachments []models.Attachment) (threading.Result, error)
}

// Pipeline wires the MIME parser, the reconciler and post-commit side
// effects. Callers must acknowledge the source email (IMAP \Seen, POP3
// delete, webhook 200) only when HandleIncoming returns nil error; on
// failure the source stays unacknowledged so redelivery retries, and the
// reconciler's duplicate guard makes those retries safe.
type Pipeline struct {
	reconciler  reconciler
	fileStorage storage.FileStorage
	notifier    Notifier
	logger      *slog.Logger
	security    *seclog.SecurityLogger
}

// PipelineConfig holds dependencies for the pipeline
type PipelineConfig struct {
	Reconciler  *threading.ConversationReconciler
	FileStorage storage.FileStorage
	Notifier    Notifier
	Logger      *slog.Logger
	Security    *seclog.SecurityLogger
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(cfg *PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		reconciler:  cfg.Reconciler,
		fileStorage: cfg.FileStorage,
		notifier:    cfg.Notifier,
		logger:      logger,
		security:    cfg.Security,
	}
}

// HandleIncoming ingests one raw email for a desk.
func (p *Pipeline) HandleIncoming(ctx context.Context, raw io.Reader, deskID uint) (threading.Result, error) {
	rec, err := mail.ParseEmail(raw)
	if err != nil {
		return threading.Result{}, fmt.Errorf("ingestion: parse email: %w", err)
	}

	if err := validator.ValidateEmail(rec.SenderEmail); err != nil {
		return threading.Result{}, fmt.Errorf("ingestion: sender address %q: %w", rec.SenderEmail, err)
	}

	// Header fields are attacker-controlled and end up in ticket rows and
	// dashboard views; strip control characters and cap them at the column
	// sizes before anything downstream sees them.
	rec.Subject = validator.SanitizeString(rec.Subject, 998)
	rec.SenderName = validator.SanitizeString(rec.SenderName, 255)

	attachments := p.storeAttachments(rec)

	result, err := p.reconciler.IngestWithAttachments(ctx, rec, deskID, attachments)
	if err != nil {
		p.discardAttachments(attachments)
		return threading.Result{}, err
	}
	if result.Created == threading.CreatedDuplicate {
		// The reconciler wrote no rows, so the files saved above would
		// leak one copy per redelivery.
		p.discardAttachments(attachments)
	}

	p.logger.Info("email ingested",
		slog.Uint64("desk_id", uint64(deskID)),
		slog.String("sender", rec.SenderEmail),
		slog.String("subject", rec.Subject),
		slog.String("created", string(result.Created)))

	if p.notifier != nil && result.Created != threading.CreatedDuplicate {
		event := "message_appended"
		if result.Created == threading.CreatedTicket {
			event = "ticket_created"
		}
		p.notifier.NotifyTicketEvent(deskID, event, result.TicketID, result.MessageID)
	}

	return result, nil
}

// discardAttachments removes files whose rows never made it to the store.
func (p *Pipeline) discardAttachments(attachments []models.Attachment) {
	if p.fileStorage == nil {
		return
	}
	for _, att := range attachments {
		if err := p.fileStorage.Delete(att.FilePath); err != nil {
			p.logger.Warn("failed to remove unreferenced attachment file",
				slog.String("file_path", att.FilePath),
				slog.Any("error", err))
		}
	}
}

// storeAttachments writes attachment payloads to file storage and returns
// rows ready to bind to the message. A failed attachment is logged and
// skipped; it never blocks the conversation itself.
func (p *Pipeline) storeAttachments(rec *mail.EmailRecord) []models.Attachment {
	if p.fileStorage == nil || len(rec.Attachments) == 0 {
		return nil
	}
	var attachments []models.Attachment
	for _, att := range rec.Attachments {
		filename := validator.SanitizeFilename(att.Filename)
		if err := storage.ValidateFile(filename, att.Size); err != nil {
			p.logger.Warn("rejected attachment",
				slog.String("filename", filename),
				slog.Any("error", err))
			if p.security != nil {
				p.security.BlockedFileUpload(rec.SenderEmail, filename, err.Error())
			}
			continue
		}
		filePath, err := p.fileStorage.Save(filename, att.Content)
		if err != nil {
			p.logger.Error("failed to save attachment",
				slog.String("filename", filename),
				slog.Any("error", err))
			continue
		}
		attachments = append(attachments, models.Attachment{
			Filename:    filename,
			ContentType: att.ContentType,
			FilePath:    filePath,
			SizeBytes:   att.Size,
		})
	}
	return attachments
}
