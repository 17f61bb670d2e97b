// Package ingest parses raw RFC 5322 message bytes into the structured
// fields and attachment payloads the persistence layer stores. Parsing
// is pure: no network or storage calls happen here.
package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

func init() {
	// Decode non-UTF-8 bodies and encoded-word headers.
	message.CharsetReader = charset.Reader
}

// noSubject is stored when a message carries no Subject header.
const noSubject = "(no subject)"

// ParseError indicates that a message's bytes are not parseable MIME.
// Callers log it and skip that one message rather than aborting the
// mailbox pass.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParsedMessage holds the extracted content of one mail message.
// From and To are nil when the corresponding address list is absent.
type ParsedMessage struct {
	From        *string
	To          *string
	Subject     string
	SentAt      time.Time
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment is one decoded attachment part, in the order it appeared
// in the message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Parse reads a full raw message and extracts its envelope fields,
// text and HTML bodies, and attachments. A missing Subject falls back
// to a placeholder and a missing Date header falls back to the current
// time, so every stored message has both.
func Parse(raw []byte) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	defer mr.Close()

	parsed := &ParsedMessage{
		From:    formatAddress(mr.Header, "From"),
		To:      formatAddress(mr.Header, "To"),
		Subject: noSubject,
		SentAt:  time.Now(),
	}

	if subject, err := mr.Header.Subject(); err == nil && subject != "" {
		parsed.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil && !date.IsZero() {
		parsed.SentAt = date
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Headers are already extracted; keep whatever parts
			// were read before the malformed one.
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				parsed.TextBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				parsed.HTMLBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			parsed.Attachments = append(parsed.Attachments, Attachment{
				Filename:    filename,
				ContentType: contentType,
				Data:        body,
			})
		}
	}

	return parsed, nil
}

// formatAddress renders the first address of a header field as
// `"Name" <addr>` when a display name is present, else `<addr>`.
// An absent or empty field yields nil.
func formatAddress(h mail.Header, field string) *string {
	addrs, err := h.AddressList(field)
	if err != nil || len(addrs) == 0 {
		return nil
	}

	a := addrs[0]
	var s string
	if a.Name != "" {
		s = fmt.Sprintf("%q <%s>", a.Name, a.Address)
	} else {
		s = fmt.Sprintf("<%s>", a.Address)
	}
	return &s
}
