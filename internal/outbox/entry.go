package outbox

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TimestampLayout is the ISO-8601 form used for payload timestamps
// (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Status is the delivery state of a history entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
)

// Payload is one record as posted to the sheet endpoint.
type Payload struct {
	Token      string `json:"token" yaml:"token"`
	Timestamp  string `json:"timestamp" yaml:"timestamp"`
	SourceType string `json:"sourceType" yaml:"source_type"`
	Value      string `json:"value" yaml:"value"`
	Notes      string `json:"notes" yaml:"notes"`
	Client     string `json:"client" yaml:"client"`
}

// BuildPayload assembles a payload from user-editable fields. Token, value
// and notes are trimmed; now is stamped in UTC.
func BuildPayload(token, sourceType, value, notes, client string, now time.Time) Payload {
	return Payload{
		Token:      strings.TrimSpace(token),
		Timestamp:  now.UTC().Format(TimestampLayout),
		SourceType: sourceType,
		Value:      strings.TrimSpace(value),
		Notes:      strings.TrimSpace(notes),
		Client:     client,
	}
}

// Validate checks fields that must be well-formed in stored payloads.
func (p Payload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.SourceType, validation.In("BARCODE", "HANDWRITING")),
		validation.Field(&p.Timestamp, validation.By(func(any) error {
			if p.Timestamp == "" {
				return nil
			}
			_, err := time.Parse(time.RFC3339, p.Timestamp)
			return err
		})),
	)
}

// Entry is one recorded save or delivery attempt.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	Status    Status    `json:"status" yaml:"status"`
	Payload   Payload   `json:"payload" yaml:"payload"`
	Error     string    `json:"error" yaml:"error,omitempty"`
}

// Validate rejects entries that cannot be shown or retried.
func (e Entry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.CreatedAt, validation.Required),
		validation.Field(&e.Status, validation.Required, validation.In(StatusPending, StatusSent)),
		validation.Field(&e.Payload),
	)
}

// normalize maps legacy statuses onto the two-state model: any failed
// entry is pending again so a retry sweep can find it.
func (e *Entry) normalize() {
	e.Status = Status(strings.ToLower(strings.TrimSpace(string(e.Status))))
	if e.Status == "failed" {
		e.Status = StatusPending
	}
}
