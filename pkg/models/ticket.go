package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ticket represents a single support ticket. IntentID is nil until a
// classification job resolves the ticket to an intent; it is set exactly once
// and never changed by this system afterwards.
type Ticket struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	Subject   string     `db:"subject"    json:"subject"`
	Body      string     `db:"body"       json:"body"`
	IntentID  *uuid.UUID `db:"intent_id"  json:"intent_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Text returns the ticket text handed to the classifier.
func (t *Ticket) Text() string {
	subject := strings.TrimSpace(t.Subject)
	body := strings.TrimSpace(t.Body)
	if subject == "" {
		return body
	}
	if body == "" {
		return subject
	}
	return subject + "\n\n" + body
}

// TicketDraft is an unsaved ticket accepted at the ingestion boundary.
type TicketDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
