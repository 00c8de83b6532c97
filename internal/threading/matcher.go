package threading

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
)

// Default bounds for the recency windows the matcher searches. These trade
// lookup cost for recall on very old conversations; they are not correctness
// guarantees.
const (
	defaultRecentMessageWindow = 1000
	defaultRecentTicketWindow  = 200
)

// defaultMinSubjectLen gates the subject fallback: root subjects shorter than
// this are too generic to thread on and fall through to a new ticket.
const defaultMinSubjectLen = 5

// Candidate carries the identifying fields of an inbound email.
type Candidate struct {
	MessageID   string
	InReplyTo   string
	References  string
	Subject     string
	SenderEmail string
}

// messageDirectory is the read-only message store view the matcher needs.
type messageDirectory interface {
	FindNewestByLookalikeMessageID(ctx context.Context, cleanID string, excludeTicketID uint) (*models.Message, error)
	ListRecentWithMessageID(ctx context.Context, limit int, excludeTicketID uint) ([]models.Message, error)
}

// ticketDirectory is the read-only ticket store view the matcher needs.
type ticketDirectory interface {
	ListRecent(ctx context.Context, limit int, excludeTicketID uint) ([]models.Ticket, error)
}

// ThreadMatcher determines the ticket an inbound email belongs to. Strategies
// run in strict precedence order: In-Reply-To lookup, references-chain lookup,
// then subject+sender fallback. Header identifiers are essentially
// collision-free while subjects collide easily, so running the heuristic last
// bounds its blast radius to the headerless cases. The matcher never mutates
// the store.
type ThreadMatcher struct {
	messages      messageDirectory
	tickets       ticketDirectory
	messageWindow int
	ticketWindow  int
	minSubjectLen int
	logger        *slog.Logger
}

// MatcherOption customizes a ThreadMatcher.
type MatcherOption func(*ThreadMatcher)

// WithMatcherLogger sets the diagnostics logger.
func WithMatcherLogger(logger *slog.Logger) MatcherOption {
	return func(m *ThreadMatcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRecentMessageWindow bounds the references-chain search.
func WithRecentMessageWindow(n int) MatcherOption {
	return func(m *ThreadMatcher) {
		if n > 0 {
			m.messageWindow = n
		}
	}
}

// WithMinSubjectLength sets the minimum root-subject length for the
// subject+sender fallback. Zero disables the gate.
func WithMinSubjectLength(n int) MatcherOption {
	return func(m *ThreadMatcher) {
		if n >= 0 {
			m.minSubjectLen = n
		}
	}
}

// NewThreadMatcher builds a matcher over the given store views.
func NewThreadMatcher(messages messageDirectory, tickets ticketDirectory, opts ...MatcherOption) *ThreadMatcher {
	m := &ThreadMatcher{
		messages:      messages,
		tickets:       tickets,
		messageWindow: defaultRecentMessageWindow,
		ticketWindow:  defaultRecentTicketWindow,
		minSubjectLen: defaultMinSubjectLen,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindTicket returns the id of the ticket the candidate belongs to, or 0 when
// no strategy yields a confident match. A non-nil error means the store could
// not be consulted; callers must not treat that as "no match", since creating
// a ticket on a failed lookup would silently fork the thread. excludeTicketID
// of 0 excludes nothing; a non-zero value is used by re-threading tooling to
// keep a message's current ticket out of consideration.
func (m *ThreadMatcher) FindTicket(ctx context.Context, cand Candidate, excludeTicketID uint) (uint, error) {
	if id, err := m.matchInReplyTo(ctx, cand, excludeTicketID); err != nil || id != 0 {
		return id, err
	}
	if id, err := m.matchReferences(ctx, cand, excludeTicketID); err != nil || id != 0 {
		return id, err
	}
	return m.matchSubjectSender(ctx, cand, excludeTicketID)
}

// matchInReplyTo is strategy 1: the candidate's In-Reply-To against stored
// message identifiers, tolerating angle-bracket wrapping and truncation.
// Highest confidence; the newest matching message wins.
func (m *ThreadMatcher) matchInReplyTo(ctx context.Context, cand Candidate, excludeTicketID uint) (uint, error) {
	cleanID := CleanMessageID(cand.InReplyTo)
	if cleanID == "" {
		return 0, nil
	}

	msg, err := m.messages.FindNewestByLookalikeMessageID(ctx, cleanID, excludeTicketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	m.logger.Debug("thread match via In-Reply-To",
		slog.String("in_reply_to", cleanID),
		slog.Uint64("ticket_id", uint64(msg.TicketID)))
	return msg.TicketID, nil
}

// matchReferences is strategy 2: every identifier in the References chain
// (plus In-Reply-To) against a recent window of stored messages. An exact
// clean-form pass runs first; a fuzzy prefix pass follows for relays that
// mutate identifiers.
func (m *ThreadMatcher) matchReferences(ctx context.Context, cand Candidate, excludeTicketID uint) (uint, error) {
	candidates := uniqueCleanIDs(cand.References, cand.InReplyTo)
	if len(candidates) == 0 {
		return 0, nil
	}

	recent, err := m.messages.ListRecentWithMessageID(ctx, m.messageWindow, excludeTicketID)
	if err != nil {
		return 0, err
	}

	// Exact pass
	for _, msg := range recent {
		stored := CleanMessageID(msg.EmailMessageID)
		for _, id := range candidates {
			if stored == id {
				m.logger.Debug("thread match via references (exact)",
					slog.String("message_id", id),
					slog.Uint64("ticket_id", uint64(msg.TicketID)))
				return msg.TicketID, nil
			}
		}
	}

	// Fuzzy pass
	for _, msg := range recent {
		stored := CleanMessageID(msg.EmailMessageID)
		for _, id := range candidates {
			if fuzzyIDMatch(stored, id) {
				m.logger.Debug("thread match via references (fuzzy)",
					slog.String("stored_id", stored),
					slog.String("candidate_id", id),
					slog.Uint64("ticket_id", uint64(msg.TicketID)))
				return msg.TicketID, nil
			}
		}
	}

	return 0, nil
}

// matchSubjectSender is strategy 3: the lowest-confidence fallback for emails
// whose identifying headers were absent or unmatched. Among tickets whose
// subject matches the candidate's root subject, one from the same sender is
// preferred; otherwise the most recently updated match is returned, accepting
// the risk of conflating two customers with an identical generic subject.
func (m *ThreadMatcher) matchSubjectSender(ctx context.Context, cand Candidate, excludeTicketID uint) (uint, error) {
	root := RootSubject(cand.Subject)
	if len(root) < m.minSubjectLen {
		return 0, nil
	}

	recent, err := m.tickets.ListRecent(ctx, m.ticketWindow, excludeTicketID)
	if err != nil {
		return 0, err
	}

	var subjectMatches []models.Ticket
	rootLower := strings.ToLower(root)
	for _, t := range recent {
		stored := strings.ToLower(strings.TrimSpace(t.Subject))
		if stored == "" {
			continue
		}
		if strings.Contains(stored, rootLower) || strings.Contains(rootLower, stored) {
			subjectMatches = append(subjectMatches, t)
		}
	}
	if len(subjectMatches) == 0 {
		return 0, nil
	}

	for _, t := range subjectMatches {
		if strings.EqualFold(t.CustomerEmail, cand.SenderEmail) {
			m.logger.Debug("thread match via subject+sender",
				slog.String("subject", root),
				slog.Uint64("ticket_id", uint64(t.ID)))
			return t.ID, nil
		}
	}

	// No sender match: recent list is ordered by activity, take the newest.
	m.logger.Debug("thread match via subject only",
		slog.String("subject", root),
		slog.Uint64("ticket_id", uint64(subjectMatches[0].ID)))
	return subjectMatches[0].ID, nil
}
