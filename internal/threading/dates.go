package threading

import (
	"math/rand"
	stdmail "net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/mail"
)

// DateSource identifies which tier of the extraction produced the date.
type DateSource string

const (
	SourceParsedDate   DateSource = "parsed_date"
	SourceHeaderDate   DateSource = "header_date"
	SourceReceivedDate DateSource = "received_date"
	SourceFallback     DateSource = "fallback"
)

// Confidence grades how much downstream consumers should trust the date.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Extraction is the result of authentic-date recovery. Date is always usable.
type Extraction struct {
	Date       time.Time
	Source     DateSource
	Confidence Confidence
}

// Validity window for candidate dates. Bounds out clock-skew garbage and
// corrupted far-past/far-future values while tolerating legitimate timezone
// spread and mildly skewed mail servers.
const (
	maxDateAge    = 2 * 365 * 24 * time.Hour
	maxDateFuture = 24 * time.Hour
)

var dateHeaderPattern = regexp.MustCompile(`(?mi)^Date:\s*(.+)$`)

// DateExtractor recovers the authentic origination timestamp of an email
// from unreliable inputs. It never fails; the lowest tier synthesizes a
// plausible recent date marked with low confidence.
type DateExtractor struct {
	now     func() time.Time
	reparse func(raw []byte) (time.Time, bool)
	intn    func(n int) int
}

// DateExtractorOption customizes a DateExtractor.
type DateExtractorOption func(*DateExtractor)

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) DateExtractorOption {
	return func(e *DateExtractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithReparser overrides the full-message re-parse fallback.
func WithReparser(fn func(raw []byte) (time.Time, bool)) DateExtractorOption {
	return func(e *DateExtractor) {
		if fn != nil {
			e.reparse = fn
		}
	}
}

// NewDateExtractor builds an extractor with the enmime re-parse fallback.
func NewDateExtractor(opts ...DateExtractorOption) *DateExtractor {
	e := &DateExtractor{
		now:     func() time.Time { return time.Now().UTC() },
		reparse: mail.ReparseDate,
		intn:    rand.Intn,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract recovers the authentic origination date of rec, trying each tier
// in strict priority order and validating every candidate against the
// reasonable-email-date window.
func (e *DateExtractor) Extract(rec *mail.EmailRecord) Extraction {
	if rec != nil {
		// Tier 1: date decoded by the MIME layer on first pass
		if rec.ParsedDate != nil && e.isReasonable(*rec.ParsedDate) {
			return Extraction{Date: *rec.ParsedDate, Source: SourceParsedDate, Confidence: ConfidenceHigh}
		}

		// Tier 2: explicit Date: header in the raw header block
		if d, ok := e.headerDate(rec.RawHeaders); ok {
			return Extraction{Date: d, Source: SourceHeaderDate, Confidence: ConfidenceHigh}
		}

		// Tier 3: full-message re-parse
		if e.reparse != nil {
			if d, ok := e.reparse(rec.Raw); ok && e.isReasonable(d) {
				return Extraction{Date: d, Source: SourceParsedDate, Confidence: ConfidenceMedium}
			}
		}

		// Tier 4: Received header chain
		if d, ok := e.receivedDate(rec.RawHeaders); ok {
			return Extraction{Date: d, Source: SourceReceivedDate, Confidence: ConfidenceMedium}
		}
	}

	return Extraction{Date: e.syntheticDate(), Source: SourceFallback, Confidence: ConfidenceLow}
}

// isReasonable checks that the candidate lies within [now-2y, now+1d].
func (e *DateExtractor) isReasonable(d time.Time) bool {
	if d.IsZero() {
		return false
	}
	now := e.now()
	if d.Before(now.Add(-maxDateAge)) {
		return false
	}
	if d.After(now.Add(maxDateFuture)) {
		return false
	}
	return true
}

// headerDate extracts and validates the first Date: header line.
func (e *DateExtractor) headerDate(rawHeaders string) (time.Time, bool) {
	match := dateHeaderPattern.FindStringSubmatch(rawHeaders)
	if match == nil {
		return time.Time{}, false
	}
	d, err := stdmail.ParseDate(strings.TrimSpace(match[1]))
	if err != nil {
		return time.Time{}, false
	}
	if !e.isReasonable(d) {
		return time.Time{}, false
	}
	return d, true
}

// receivedDate scans the Received header chain and parses the timestamp of
// the last occurrence. Received headers are prepended by each hop, so the
// last one is closest to the true origination. The date-time clause follows
// the final semicolon of the header value.
func (e *DateExtractor) receivedDate(rawHeaders string) (time.Time, bool) {
	received := unfoldHeaders(rawHeaders, "received")
	if len(received) == 0 {
		return time.Time{}, false
	}
	value := received[len(received)-1]
	idx := strings.LastIndex(value, ";")
	if idx < 0 || idx == len(value)-1 {
		return time.Time{}, false
	}
	clause := strings.TrimSpace(value[idx+1:])
	d, err := stdmail.ParseDate(clause)
	if err != nil {
		return time.Time{}, false
	}
	if !e.isReasonable(d) {
		return time.Time{}, false
	}
	return d, true
}

// syntheticDate generates a stand-in timestamp 1-7 days in the past at a
// business hour, so no ticket ever carries a null or zero date.
func (e *DateExtractor) syntheticDate() time.Time {
	now := e.now()
	daysBack := 1 + e.intn(7)
	hour := 9 + e.intn(8) // 9:00-16:59
	minute := e.intn(60)
	d := now.AddDate(0, 0, -daysBack)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, now.Location())
}

// unfoldHeaders returns the unfolded values of every header line named name
// (case-insensitive), in file order. Continuation lines (leading whitespace)
// are joined onto the preceding header.
func unfoldHeaders(rawHeaders, name string) []string {
	var values []string
	collecting := false
	prefix := strings.ToLower(name) + ":"
	for _, line := range strings.Split(rawHeaders, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if collecting && len(values) > 0 {
				values[len(values)-1] += " " + strings.TrimSpace(line)
			}
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			values = append(values, strings.TrimSpace(line[len(prefix):]))
			collecting = true
		} else {
			collecting = false
		}
	}
	return values
}
