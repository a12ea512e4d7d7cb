package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// IncidentStatus is the workflow state of an incident.
type IncidentStatus string

const (
	IncidentStatusPending    IncidentStatus = "pendiente"
	IncidentStatusInProgress IncidentStatus = "en_proceso"
	IncidentStatusResolved   IncidentStatus = "resuelto"
	IncidentStatusRejected   IncidentStatus = "rechazado"
)

// IsValid reports whether the status belongs to the workflow.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusPending, IncidentStatusInProgress, IncidentStatusResolved, IncidentStatusRejected:
		return true
	}
	return false
}

// IsOpen reports whether the incident still needs attention.
func (s IncidentStatus) IsOpen() bool {
	return s == IncidentStatusPending || s == IncidentStatusInProgress
}

// IsClosed reports whether the incident reached a terminal state.
func (s IncidentStatus) IsClosed() bool {
	return s == IncidentStatusResolved || s == IncidentStatusRejected
}

// IncidentPriority is ordinal: baja < media < alta < urgente.
type IncidentPriority string

const (
	PriorityLow    IncidentPriority = "baja"
	PriorityMedium IncidentPriority = "media"
	PriorityHigh   IncidentPriority = "alta"
	PriorityUrgent IncidentPriority = "urgente"
)

// Rank returns the ordinal of the priority, 0 when unknown.
func (p IncidentPriority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

// IsValid reports whether the priority is known.
func (p IncidentPriority) IsValid() bool {
	return p.Rank() > 0
}

// AttachmentType distinguishes incident media.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
)

// Attachment is media linked to an incident. StorageKey is set when the content
// lives in local storage; URL then holds a signed download link at read time.
type Attachment struct {
	ID         string         `json:"id"`
	Type       AttachmentType `json:"type"`
	URL        string         `json:"url,omitempty"`
	Name       string         `json:"name"`
	MimeType   string         `json:"mime_type,omitempty"`
	Size       int64          `json:"size,omitempty"`
	StorageKey string         `json:"storage_key,omitempty"`
}

// Attachments is stored as a JSONB array.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src interface{}) error {
	return scanJSONArray(src, a, "attachments")
}

// IncidentNote is an append-only comment on an incident.
type IncidentNote struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// IncidentNotes is stored as a JSONB array in chronological order.
type IncidentNotes []IncidentNote

// Value implements driver.Valuer.
func (n IncidentNotes) Value() (driver.Value, error) {
	if n == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(n)
}

// Scan implements sql.Scanner.
func (n *IncidentNotes) Scan(src interface{}) error {
	return scanJSONArray(src, n, "notes")
}

// Incident is a maintenance or issue report raised by a resident.
type Incident struct {
	ID          string           `db:"id" json:"id"`
	Title       string           `db:"title" json:"title"`
	Description string           `db:"description" json:"description"`
	Category    string           `db:"category" json:"category"`
	Status      IncidentStatus   `db:"status" json:"status"`
	Priority    IncidentPriority `db:"priority" json:"priority"`
	Location    string           `db:"location" json:"location"`
	UserID      string           `db:"user_id" json:"user_id"`
	UserName    string           `db:"user_name" json:"user_name"`
	UserHouse   string           `db:"user_house" json:"user_house"`
	Attachments Attachments      `db:"attachments" json:"attachments"`
	Notes       IncidentNotes    `db:"notes" json:"notes"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// IncidentRecipient is a subscribed creator resolved for batch notifications.
type IncidentRecipient struct {
	UserID   string `db:"user_id"`
	Username string `db:"username"`
	FullName string `db:"full_name"`
	Email    string `db:"email"`
}

func scanJSONArray(src interface{}, dest interface{}, label string) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		raw = []byte("[]")
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("%s: unsupported type %T", label, src)
	}
	if len(raw) == 0 {
		raw = []byte("[]")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return nil
}
