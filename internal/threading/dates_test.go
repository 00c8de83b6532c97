package threading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/mail"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestExtractor(opts ...DateExtractorOption) *DateExtractor {
	base := []DateExtractorOption{
		WithClock(func() time.Time { return testNow }),
		WithReparser(func(raw []byte) (time.Time, bool) { return time.Time{}, false }),
	}
	return NewDateExtractor(append(base, opts...)...)
}

// ==================== Tier Precedence Tests ====================

func TestExtract_ParsedDateWins(t *testing.T) {
	e := newTestExtractor()
	parsed := testNow.Add(-48 * time.Hour)

	rec := &mail.EmailRecord{
		ParsedDate: &parsed,
		RawHeaders: "Date: Sun, 1 Jun 2025 08:00:00 +0000\r\n",
	}

	ext := e.Extract(rec)
	assert.Equal(t, parsed, ext.Date)
	assert.Equal(t, SourceParsedDate, ext.Source)
	assert.Equal(t, ConfidenceHigh, ext.Confidence)
}

func TestExtract_HeaderDateWhenParsedMissing(t *testing.T) {
	e := newTestExtractor()

	rec := &mail.EmailRecord{
		RawHeaders: "Received: from mx (mx) by host; Sat, 14 Jun 2025 10:00:00 +0000\r\nDate: Sun, 1 Jun 2025 08:30:00 +0000\r\n",
	}

	ext := e.Extract(rec)
	require.Equal(t, SourceHeaderDate, ext.Source)
	assert.Equal(t, ConfidenceHigh, ext.Confidence)
	assert.True(t, ext.Date.Equal(time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)))
}

func TestExtract_HeaderDateWhenParsedUnreasonable(t *testing.T) {
	e := newTestExtractor()
	ancient := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := &mail.EmailRecord{
		ParsedDate: &ancient,
		RawHeaders: "Date: Sun, 1 Jun 2025 08:30:00 +0000\r\n",
	}

	ext := e.Extract(rec)
	assert.Equal(t, SourceHeaderDate, ext.Source)
}

func TestExtract_ReparseWhenHeaderMissing(t *testing.T) {
	reparsed := testNow.Add(-24 * time.Hour)
	e := newTestExtractor(WithReparser(func(raw []byte) (time.Time, bool) {
		return reparsed, true
	}))

	rec := &mail.EmailRecord{RawHeaders: "Subject: hello\r\n"}

	ext := e.Extract(rec)
	assert.Equal(t, reparsed, ext.Date)
	assert.Equal(t, SourceParsedDate, ext.Source)
	assert.Equal(t, ConfidenceMedium, ext.Confidence)
}

func TestExtract_ReceivedDateWhenAllElseFails(t *testing.T) {
	e := newTestExtractor()

	rec := &mail.EmailRecord{
		RawHeaders: "Received: from mx2 by host2; Sat, 14 Jun 2025 11:00:00 +0000\r\n" +
			"Received: from sender by mx1; Sat, 14 Jun 2025 10:00:00 +0000\r\n" +
			"Subject: no date header\r\n",
	}

	ext := e.Extract(rec)
	require.Equal(t, SourceReceivedDate, ext.Source)
	assert.Equal(t, ConfidenceMedium, ext.Confidence)
	// Last Received header is closest to origination.
	assert.True(t, ext.Date.Equal(time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)))
}

func TestExtract_FallbackForNilRecord(t *testing.T) {
	e := newTestExtractor()

	ext := e.Extract(nil)
	assert.Equal(t, SourceFallback, ext.Source)
	assert.Equal(t, ConfidenceLow, ext.Confidence)
	assert.False(t, ext.Date.IsZero())
}

func TestExtract_FallbackForEmptyRecord(t *testing.T) {
	e := newTestExtractor()

	ext := e.Extract(&mail.EmailRecord{})
	assert.Equal(t, SourceFallback, ext.Source)
	assert.Equal(t, ConfidenceLow, ext.Confidence)
}

// ==================== Validity Window Tests ====================

func TestIsReasonable(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		name     string
		date     time.Time
		expected bool
	}{
		{"now", testNow, true},
		{"yesterday", testNow.Add(-24 * time.Hour), true},
		{"just inside two years", testNow.Add(-maxDateAge + time.Hour), true},
		{"older than two years", testNow.Add(-maxDateAge - time.Hour), false},
		{"just inside one day ahead", testNow.Add(maxDateFuture - time.Hour), true},
		{"beyond one day ahead", testNow.Add(maxDateFuture + time.Hour), false},
		{"zero", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, e.isReasonable(tt.date))
		})
	}
}

func TestHeaderDate_RejectsUnreasonable(t *testing.T) {
	e := newTestExtractor()

	_, ok := e.headerDate("Date: Fri, 1 Jan 1999 00:00:00 +0000\r\n")
	assert.False(t, ok)
}

func TestHeaderDate_RejectsGarbage(t *testing.T) {
	e := newTestExtractor()

	_, ok := e.headerDate("Date: not a date at all\r\n")
	assert.False(t, ok)
}

func TestHeaderDate_MatchesMidBlock(t *testing.T) {
	e := newTestExtractor()

	headers := "From: alice@example.com\r\nDate: Sat, 14 Jun 2025 09:15:00 +0000\r\nSubject: x\r\n"
	d, ok := e.headerDate(headers)
	require.True(t, ok)
	assert.True(t, d.Equal(time.Date(2025, 6, 14, 9, 15, 0, 0, time.UTC)))
}

// ==================== Received Header Tests ====================

func TestReceivedDate_UsesClauseAfterLastSemicolon(t *testing.T) {
	e := newTestExtractor()

	headers := "Received: from a (a [1.2.3.4]) by b with ESMTP; id x; Sat, 14 Jun 2025 10:30:00 +0000\r\n"
	d, ok := e.receivedDate(headers)
	require.True(t, ok)
	assert.True(t, d.Equal(time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC)))
}

func TestReceivedDate_UnfoldsContinuationLines(t *testing.T) {
	e := newTestExtractor()

	headers := "Received: from sender by mx1\r\n\twith ESMTP;\r\n\tSat, 14 Jun 2025 10:00:00 +0000\r\n"
	d, ok := e.receivedDate(headers)
	require.True(t, ok)
	assert.True(t, d.Equal(time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)))
}

func TestReceivedDate_NoReceivedHeaders(t *testing.T) {
	e := newTestExtractor()

	_, ok := e.receivedDate("Subject: hello\r\n")
	assert.False(t, ok)
}

func TestReceivedDate_NoSemicolon(t *testing.T) {
	e := newTestExtractor()

	_, ok := e.receivedDate("Received: from a by b Sat, 14 Jun 2025 10:00:00 +0000\r\n")
	assert.False(t, ok)
}

// ==================== Synthetic Fallback Tests ====================

func TestSyntheticDate_Bounds(t *testing.T) {
	e := newTestExtractor()

	for i := 0; i < 200; i++ {
		d := e.syntheticDate()
		assert.True(t, d.Before(testNow), "synthetic date must be in the past")
		assert.False(t, d.Before(testNow.AddDate(0, 0, -8)), "at most 7 days back")
		assert.GreaterOrEqual(t, d.Hour(), 9)
		assert.LessOrEqual(t, d.Hour(), 16)
	}
}

func TestSyntheticDate_Deterministic(t *testing.T) {
	e := newTestExtractor()
	e.intn = func(n int) int { return 0 }

	d := e.syntheticDate()
	expected := time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC)
	assert.True(t, d.Equal(expected))
}
