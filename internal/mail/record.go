package mail

import (
	"io"
	"time"
)

// EmailRecord is the normalized form of one inbound email, produced by the
// MIME layer and consumed by the threading core. Header-derived fields keep
// whatever decoration the sending agent used; normalization happens at the
// point of comparison, not here.
type EmailRecord struct {
	MessageID   string
	InReplyTo   string
	References  string
	Subject     string
	SenderEmail string
	SenderName  string
	RawHeaders  string
	ParsedDate  *time.Time
	BodyText    string
	BodyHTML    string
	Snippet     string
	Attachments []ParsedAttachment

	// Raw retains the original payload for the date re-parse fallback.
	Raw []byte
}

// ParsedAttachment represents a decoded email attachment
type ParsedAttachment struct {
	Filename    string
	ContentType string
	Content     io.Reader
	Size        int64
}
