// Package mail decodes raw RFC 5322 payloads into EmailRecord values.
package mail

import (
	"bytes"
	"io"
	stdmail "net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

// ParseEmail parses a raw email into an EmailRecord
func ParseEmail(r io.Reader) (*EmailRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	rec := &EmailRecord{
		MessageID:  env.GetHeader("Message-Id"),
		InReplyTo:  env.GetHeader("In-Reply-To"),
		References: env.GetHeader("References"),
		Subject:    env.GetHeader("Subject"),
		RawHeaders: headerBlock(raw),
		BodyText:   env.Text,
		BodyHTML:   env.HTML,
		Raw:        raw,
	}

	rec.SenderName, rec.SenderEmail = parseFromHeader(env.GetHeader("From"))
	rec.Snippet = generateSnippet(rec.BodyText, rec.BodyHTML)

	if d, ok := parseHeaderDate(env.GetHeader("Date")); ok {
		rec.ParsedDate = &d
	}

	for _, att := range env.Attachments {
		rec.Attachments = append(rec.Attachments, ParsedAttachment{
			Filename:    att.FileName,
			ContentType: att.ContentType,
			Content:     bytes.NewReader(att.Content),
			Size:        int64(len(att.Content)),
		})
	}
	for _, att := range env.Inlines {
		if att.FileName != "" {
			rec.Attachments = append(rec.Attachments, ParsedAttachment{
				Filename:    att.FileName,
				ContentType: att.ContentType,
				Content:     bytes.NewReader(att.Content),
				Size:        int64(len(att.Content)),
			})
		}
	}

	return rec, nil
}

// ReparseDate runs a fresh full-message parse of raw and returns the Date
// header it yields. Used as a date-extraction fallback when the first pass
// came through without one.
func ReparseDate(raw []byte) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return time.Time{}, false
	}
	return parseHeaderDate(env.GetHeader("Date"))
}

// parseHeaderDate parses an RFC 5322 date header value
func parseHeaderDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	d, err := stdmail.ParseDate(value)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// headerBlock returns the raw header section of the message (everything up
// to the first blank line).
func headerBlock(raw []byte) string {
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return string(raw[:idx])
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return string(raw[:idx])
	}
	return string(raw)
}

// parseFromHeader extracts name and email from a From header
func parseFromHeader(from string) (name, email string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}

	if addr, err := stdmail.ParseAddress(from); err == nil {
		return strings.TrimSpace(addr.Name), strings.TrimSpace(addr.Address)
	}

	// Pattern: "Name" <email@example.com> or Name <email@example.com>
	re := regexp.MustCompile(`^(?:"?([^"<]*)"?\s*)?<?([^<>]+@[^<>]+)>?$`)
	matches := re.FindStringSubmatch(from)

	if len(matches) >= 3 {
		name = strings.Trim(strings.TrimSpace(matches[1]), `"`)
		email = strings.TrimSpace(matches[2])
	} else {
		// Fallback: treat entire string as email
		email = from
	}

	return name, email
}

// generateSnippet creates a preview snippet from email body
func generateSnippet(bodyText, bodyHTML string) string {
	var text string

	if bodyText != "" {
		text = bodyText
	} else if bodyHTML != "" {
		text = stripHTMLTags(bodyHTML)
	}

	text = strings.Join(strings.Fields(text), " ")
	text = strings.TrimSpace(text)

	if len(text) > 255 {
		text = text[:252] + "..."
	}

	return text
}

var (
	scriptElementRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleElementRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	htmlTagRe       = regexp.MustCompile(`<[^>]*>`)
)

// stripHTMLTags removes HTML tags from a string
func stripHTMLTags(html string) string {
	// Drop script and style elements wholesale; their content is code, not prose.
	html = scriptElementRe.ReplaceAllString(html, "")
	html = styleElementRe.ReplaceAllString(html, "")

	html = htmlTagRe.ReplaceAllString(html, " ")

	// Decode common HTML entities
	html = strings.ReplaceAll(html, "&nbsp;", " ")
	html = strings.ReplaceAll(html, "&amp;", "&")
	html = strings.ReplaceAll(html, "&lt;", "<")
	html = strings.ReplaceAll(html, "&gt;", ">")
	html = strings.ReplaceAll(html, "&quot;", `"`)
	html = strings.ReplaceAll(html, "&#39;", "'")

	return html
}
