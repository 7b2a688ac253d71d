package api

import (
	"regexp"
	"strings"
	"time"
)

// Email is a message as returned by the backend. The client treats it as
// immutable; a fresh copy arrives on every fetch.
type Email struct {
	ID          string       `json:"id"`
	AccountID   string       `json:"account_id"`
	ThreadID    string       `json:"thread_id,omitempty"`
	Folder      string       `json:"folder"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Cc          []string     `json:"cc,omitempty"`
	Body        Body         `json:"body"`
	Date        string       `json:"date"`
	Read        bool         `json:"read"`
	Starred     bool         `json:"starred"`
	Attachments []Attachment `json:"attachments,omitempty"`
	LabelIDs    []string     `json:"label_ids,omitempty"`
}

// Body holds the structured message content
type Body struct {
	Text string `json:"text"`
	HTML string `json:"html,omitempty"`
}

// Attachment describes a file attached to an email
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// FolderPage is one page of a folder listing
type FolderPage struct {
	Emails []Email `json:"emails"`
	Total  int     `json:"total"`
}

// FetchFilters narrows a folder page fetch server-side
type FetchFilters struct {
	Search        string
	Starred       bool
	HasAttachment bool
}

// DraftFields are the compose field values persisted in a draft record
type DraftFields struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// OutgoingMessage is a message submitted for sending
type OutgoingMessage struct {
	From        string   `json:"from,omitempty"`
	To          []string `json:"to"`
	Cc          []string `json:"cc,omitempty"`
	Bcc         []string `json:"bcc,omitempty"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	ScheduledAt string   `json:"scheduled_at,omitempty"`
}

// zoneSuffix matches a trailing zone indicator: Z or an explicit offset.
var zoneSuffix = regexp.MustCompile(`(?:Z|[+-]\d{2}:?\d{2})$`)

// ParseTimestamp parses a backend timestamp string. The backend sometimes
// emits naive timestamps without a zone; those are UTC, so a missing zone
// indicator gets a UTC marker appended before parsing. Malformed values
// parse as epoch zero so they sort first instead of failing the fetch.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Unix(0, 0).UTC()
	}
	if !zoneSuffix.MatchString(s) {
		s += "Z"
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Unix(0, 0).UTC()
}

// Time returns the email's received timestamp, zone-corrected. Every
// comparison and display path must go through this, never through the raw
// Date string.
func (e *Email) Time() time.Time {
	return ParseTimestamp(e.Date)
}

// HasAttachments reports whether the email carries at least one attachment
func (e *Email) HasAttachments() bool {
	return len(e.Attachments) > 0
}
