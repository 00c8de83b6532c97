package threading

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
)

// fakeMessageDirectory serves lookalike and recency queries from a slice,
// mimicking the repository's ordering (newest first).
type fakeMessageDirectory struct {
	messages   []models.Message
	lookupErr  error
	listErr    error
	lookupHits int
}

func (f *fakeMessageDirectory) FindNewestByLookalikeMessageID(_ context.Context, cleanID string, excludeTicketID uint) (*models.Message, error) {
	f.lookupHits++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for i := range f.messages {
		msg := &f.messages[i]
		if excludeTicketID != 0 && msg.TicketID == excludeTicketID {
			continue
		}
		stored := CleanMessageID(msg.EmailMessageID)
		if stored == cleanID || strings.Contains(stored, cleanID) || strings.Contains(cleanID, stored) {
			return msg, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMessageDirectory) ListRecentWithMessageID(_ context.Context, limit int, excludeTicketID uint) ([]models.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Message
	for _, msg := range f.messages {
		if excludeTicketID != 0 && msg.TicketID == excludeTicketID {
			continue
		}
		if msg.EmailMessageID == "" {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeTicketDirectory struct {
	tickets []models.Ticket
	listErr error
}

func (f *fakeTicketDirectory) ListRecent(_ context.Context, limit int, excludeTicketID uint) ([]models.Ticket, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Ticket
	for _, t := range f.tickets {
		if excludeTicketID != 0 && t.ID == excludeTicketID {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func newMatcherUnderTest(msgs *fakeMessageDirectory, tix *fakeTicketDirectory, opts ...MatcherOption) *ThreadMatcher {
	if msgs == nil {
		msgs = &fakeMessageDirectory{}
	}
	if tix == nil {
		tix = &fakeTicketDirectory{}
	}
	return NewThreadMatcher(msgs, tix, opts...)
}

// ==================== In-Reply-To Strategy Tests ====================

func TestFindTicket_InReplyToExact(t *testing.T) {
	msgs := &fakeMessageDirectory{messages: []models.Message{
		{TicketID: 42, EmailMessageID: "original123@mail.example.com"},
	}}
	m := newMatcherUnderTest(msgs, nil)

	id, err := m.FindTicket(context.Background(), Candidate{
		InReplyTo: "<original123@mail.example.com>",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestFindTicket_InReplyToBracketedStored(t *testing.T) {
	msgs := &fakeMessageDirectory{messages: []models.Message{
		{TicketID: 7, EmailMessageID: "<original123@mail.example.com>"},
	}}
	m := newMatcherUnderTest(msgs, nil)

	id, err := m.FindTicket(context.Background(), Candidate{
		InReplyTo: "original123@mail.example.com",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
}

func TestFindTicket_InReplyToLookupErrorPropagates(t *testing.T) {
	dbErr := errors.New("connection refused")
	msgs := &fakeMessageDirectory{lookupErr: dbErr}
	m := newMatcherUnderTest(msgs, nil)

	id, err := m.FindTicket(context.Background(), Candidate{
		InReplyTo: "<original123@mail.example.com>",
	}, 0)
	assert.ErrorIs(t, err, dbErr)
	assert.Zero(t, id)
}

func TestFindTicket_InReplyToNotFoundFallsThrough(t *testing.T) {
	msgs := &fakeMessageDirectory{messages: []models.Message{
		{TicketID: 9, EmailMessageID: "chain456@mail.example.com"},
	}}
	m := newMatcherUnderTest(msgs, nil)

	// In-Reply-To misses, References hits the same store.
	id, err := m.FindTicket(context.Background(), Candidate{
		InReplyTo:  "<gone@mail.example.com>",
		References: "<root@mail.example.com> <chain456@mail.example.com>",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(9), id)
	assert.Equal(t, 1, msgs.lookupHits)
}

func TestFindTicket_InReplyToBeatsSubjectMatch(t *testing.T) {
	// The reply's In-Reply-To points at ticket 42 while its subject word-for-
	// word matches ticket 99 from the same sender. Header identifiers are
	// near collision-free, so ticket 42 must win.
	msgs := &fakeMessageDirectory{messages: []models.Message{
		{TicketID: 42, EmailMessageID: "original123@mail.example.com"},
	}}
	tix := &fakeTicketDirectory{tickets: []models.Ticket{
		{ID: 99, Subject: "Printer is broken", CustomerEmail: "alice@example.com"},
	}}
	m := newMatcherUnderTest(msgs, tix)

	id, err := m.FindTicket(context.Background(), Candidate{
		InReplyTo:   "<original123@mail.example.com>",
		Subject:     "Re: Printer is broken",
		SenderEmail: "alice@example.com",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id, "identifier match outranks any subject match")
}

// ==================== References Strategy Tests ====================

func TestFindTicket_ReferencesExact(t *testing.T) {
	msgs := &fakeMessageDirectory{messages: []models.Message{
		{TicketID: 3, EmailMessageID: "unrelated@other.com"},
		{TicketID: 11, EmailMessageID: "<middle789@mail.example.com>"},
	}}
	m := newMatcherUnderTest(msgs, nil)

	id, err := m.FindTicket(context.Background(), Candidate{
		References: "<root@x.com> <middle789@mail.example.com>",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(11), id)
}

func TestFindTicket_ReferencesFuzzyPrefix(t *testing.T) {
	msgs := &fakeMessageDirectory{messages: []models.Message{
		{TicketID: 5, EmailMessageID: "abcdefgh1234-relay-mangled@mx.example.com"},
	}}
	m := newMatcherUnderTest(msgs, nil)

	id, err := m.FindTicket(context.Background(), Candidate{
		References: "<abcdefgh1234@mail.example.com>",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(5), id)
}

func TestFindTicket_ReferencesShortIDNoFuzzy(t *testing.T) {
	msgs := &fakeMessageDirectory{messages: []models.Message{
		{TicketID: 5, EmailMessageID: "abc@x"},
	}}
	tix := &fakeTicketDirectory{}
	m := newMatcherUnderTest(msgs, tix)

	id, err := m.FindTicket(context.Background(), Candidate{
		References: "<abc@x>",
	}, 0)
	require.NoError(t, err)
	// Exact pass still matches identical short ids.
	assert.Equal(t, uint(5), id)

	id, err = m.FindTicket(context.Background(), Candidate{
		References: "<abc@y>",
	}, 0)
	require.NoError(t, err)
	assert.Zero(t, id, "short ids must not fuzzy-match")
}

func TestFindTicket_ReferencesListErrorPropagates(t *testing.T) {
	dbErr := errors.New("timeout")
	msgs := &fakeMessageDirectory{listErr: dbErr}
	m := newMatcherUnderTest(msgs, nil)

	_, err := m.FindTicket(context.Background(), Candidate{
		References: "<abcdefgh1234@mail.example.com>",
	}, 0)
	assert.ErrorIs(t, err, dbErr)
}

func TestFindTicket_ExcludeTicket(t *testing.T) {
	msgs := &fakeMessageDirectory{messages: []models.Message{
		{TicketID: 20, EmailMessageID: "original123@mail.example.com"},
	}}
	m := newMatcherUnderTest(msgs, nil)

	id, err := m.FindTicket(context.Background(), Candidate{
		InReplyTo: "<original123@mail.example.com>",
	}, 20)
	require.NoError(t, err)
	assert.Zero(t, id)
}

// ==================== Subject+Sender Strategy Tests ====================

func TestFindTicket_SubjectAndSender(t *testing.T) {
	tix := &fakeTicketDirectory{tickets: []models.Ticket{
		{ID: 2, Subject: "Printer is broken", CustomerEmail: "bob@example.com"},
		{ID: 4, Subject: "Printer is broken", CustomerEmail: "alice@example.com"},
	}}
	m := newMatcherUnderTest(nil, tix)

	id, err := m.FindTicket(context.Background(), Candidate{
		Subject:     "Re: Printer is broken",
		SenderEmail: "Alice@Example.com",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(4), id, "same-sender ticket preferred over newer match")
}

func TestFindTicket_SubjectOnlyTakesNewest(t *testing.T) {
	tix := &fakeTicketDirectory{tickets: []models.Ticket{
		{ID: 8, Subject: "Printer is broken", CustomerEmail: "bob@example.com"},
		{ID: 6, Subject: "Printer is broken", CustomerEmail: "carol@example.com"},
	}}
	m := newMatcherUnderTest(nil, tix)

	id, err := m.FindTicket(context.Background(), Candidate{
		Subject:     "Re: Printer is broken",
		SenderEmail: "dave@example.com",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(8), id)
}

func TestFindTicket_SubjectContainment(t *testing.T) {
	tix := &fakeTicketDirectory{tickets: []models.Ticket{
		{ID: 12, Subject: "Printer is broken again today", CustomerEmail: "bob@example.com"},
	}}
	m := newMatcherUnderTest(nil, tix)

	id, err := m.FindTicket(context.Background(), Candidate{
		Subject:     "printer is broken",
		SenderEmail: "bob@example.com",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(12), id)
}

func TestFindTicket_ShortSubjectGated(t *testing.T) {
	tix := &fakeTicketDirectory{tickets: []models.Ticket{
		{ID: 12, Subject: "Hi", CustomerEmail: "bob@example.com"},
	}}
	m := newMatcherUnderTest(nil, tix)

	id, err := m.FindTicket(context.Background(), Candidate{
		Subject:     "Re: Hi",
		SenderEmail: "bob@example.com",
	}, 0)
	require.NoError(t, err)
	assert.Zero(t, id, "root subjects under the minimum length never thread")
}

func TestFindTicket_SubjectGateDisabled(t *testing.T) {
	tix := &fakeTicketDirectory{tickets: []models.Ticket{
		{ID: 12, Subject: "Hi", CustomerEmail: "bob@example.com"},
	}}
	m := newMatcherUnderTest(nil, tix, WithMinSubjectLength(0))

	id, err := m.FindTicket(context.Background(), Candidate{
		Subject:     "Re: Hi",
		SenderEmail: "bob@example.com",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(12), id)
}

func TestFindTicket_NoMatchAnywhere(t *testing.T) {
	m := newMatcherUnderTest(nil, nil)

	id, err := m.FindTicket(context.Background(), Candidate{
		Subject:     "Completely new problem",
		SenderEmail: "new@example.com",
	}, 0)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestFindTicket_SubjectListErrorPropagates(t *testing.T) {
	dbErr := errors.New("deadlock")
	tix := &fakeTicketDirectory{listErr: dbErr}
	m := newMatcherUnderTest(nil, tix)

	_, err := m.FindTicket(context.Background(), Candidate{
		Subject: "Printer is broken",
	}, 0)
	assert.ErrorIs(t, err, dbErr)
}
