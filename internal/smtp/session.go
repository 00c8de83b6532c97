package smtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-smtp"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/threading"
)

// Session implements the go-smtp Session interface
type Session struct {
	backend *Backend
	from    string
	desks   []uint
}

// NewSession creates a new SMTP session
func NewSession(backend *Backend) *Session {
	return &Session{
		backend: backend,
		desks:   make([]uint, 0),
	}
}

// AuthPlain handles PLAIN authentication (not required for receiving)
func (s *Session) AuthPlain(username, password string) error {
	// No authentication required for receiving emails
	return nil
}

// Mail handles the MAIL FROM command
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	if s.backend.logger != nil {
		s.backend.logger.Debug("MAIL FROM", slog.String("from", from))
	}
	return nil
}

// Rcpt handles the RCPT TO command. The recipient must be the inbound
// address of an active desk.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	address, err := normalizeAddress(to)
	if err != nil {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Invalid recipient address",
		}
	}

	ctx := context.Background()
	desk, err := s.backend.deskRepo.GetByInboundAddress(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &smtp.SMTPError{
				Code:         550,
				EnhancedCode: smtp.EnhancedCode{5, 1, 1},
				Message:      "No such desk",
			}
		}
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary error",
		}
	}

	if !desk.IsActive {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Desk is not active",
		}
	}

	s.desks = append(s.desks, desk.ID)
	if s.backend.logger != nil {
		s.backend.logger.Debug("RCPT TO",
			slog.String("to", address),
			slog.Uint64("desk_id", uint64(desk.ID)))
	}
	return nil
}

// Data handles the DATA command - receives the email content and hands it
// to the ingestion pipeline for each resolved desk.
func (s *Session) Data(r io.Reader) error {
	if len(s.desks) == 0 {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Failed to read message",
		}
	}

	ctx := context.Background()
	var lastErr error
	for _, deskID := range s.desks {
		result, err := s.backend.pipeline.HandleIncoming(ctx, bytes.NewReader(raw), deskID)
		if err != nil {
			lastErr = err
			if s.backend.logger != nil {
				s.backend.logger.Error("failed to ingest email",
					slog.Uint64("desk_id", uint64(deskID)),
					slog.Any("error", err))
			}
			continue
		}
		if s.backend.logger != nil {
			s.backend.logger.Info("email ingested",
				slog.String("from", s.from),
				slog.Uint64("desk_id", uint64(deskID)),
				slog.Uint64("ticket_id", uint64(result.TicketID)),
				slog.String("created", string(result.Created)))
		}
	}

	if lastErr != nil {
		var perr *threading.PersistenceError
		if errors.As(lastErr, &perr) {
			// Signal a temporary failure so the sender retries later
			return &smtp.SMTPError{
				Code:         451,
				EnhancedCode: smtp.EnhancedCode{4, 3, 0},
				Message:      "Temporary storage error",
			}
		}
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Failed to process email",
		}
	}

	return nil
}

// Reset resets the session state
func (s *Session) Reset() {
	s.from = ""
	s.desks = make([]uint, 0)
}

// Logout handles the end of the session
func (s *Session) Logout() error {
	return nil
}

// normalizeAddress strips angle brackets and lowercases an address.
func normalizeAddress(address string) (string, error) {
	address = strings.TrimPrefix(address, "<")
	address = strings.TrimSuffix(address, ">")
	address = strings.ToLower(strings.TrimSpace(address))

	parts := strings.Split(address, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid email address: %s", address)
	}
	return address, nil
}
