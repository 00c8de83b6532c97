package mailbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
)

func newTestScheduler() *PollingScheduler {
	handler := HandlerFunc(func(ctx context.Context, deskID uint, raw []byte) error {
		return nil
	})
	return NewPollingScheduler(NewIMAPFetcher(), NewPOP3Fetcher(), handler, nil)
}

func testDesk(id uint, interval int) models.Desk {
	return models.Desk{
		ID:             id,
		Name:           "Support",
		InboundAddress: "support@example.com",
		Protocol:       models.ProtocolIMAP,
		PollIntervalS:  interval,
		IsActive:       true,
	}
}

// ==================== Lifecycle Tests ====================

func TestScheduler_StartAndStop(t *testing.T) {
	s := newTestScheduler()

	desk := testDesk(1, 60)
	require.NoError(t, s.Start(desk))
	assert.True(t, s.Scheduled(desk.ID))

	s.Stop(desk.ID)
	assert.False(t, s.Scheduled(desk.ID))
}

func TestScheduler_RestartReplacesEntry(t *testing.T) {
	s := newTestScheduler()

	desk := testDesk(1, 60)
	require.NoError(t, s.Start(desk))

	// Interval changed; restarting must not leave two entries behind.
	desk.PollIntervalS = 300
	require.NoError(t, s.Start(desk))
	assert.True(t, s.Scheduled(desk.ID))
	assert.Len(t, s.entries, 1)
}

func TestScheduler_StopUnknownDeskIsNoop(t *testing.T) {
	s := newTestScheduler()
	s.Stop(42)
	assert.False(t, s.Scheduled(42))
}

func TestScheduler_StopAll(t *testing.T) {
	s := newTestScheduler()
	s.Run()

	require.NoError(t, s.Start(testDesk(1, 60)))
	require.NoError(t, s.Start(testDesk(2, 120)))
	assert.True(t, s.Scheduled(1))
	assert.True(t, s.Scheduled(2))

	s.StopAll()
	assert.False(t, s.Scheduled(1))
	assert.False(t, s.Scheduled(2))
}

func TestScheduler_IndependentDesks(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Start(testDesk(1, 60)))
	require.NoError(t, s.Start(testDesk(2, 60)))

	s.Stop(1)
	assert.False(t, s.Scheduled(1))
	assert.True(t, s.Scheduled(2))
}

func TestScheduler_DefaultIntervalForZero(t *testing.T) {
	s := newTestScheduler()

	// A desk with no configured interval falls back to one minute.
	desk := testDesk(1, 0)
	require.NoError(t, s.Start(desk))
	assert.True(t, s.Scheduled(desk.ID))
}
