package dto

import (
	"time"

	"github.com/noah-isme/incident-portal-api/internal/models"
)

// AttachmentInput is one uploaded file (as a data URL) or an external link.
type AttachmentInput struct {
	Type string `json:"type" validate:"omitempty,oneof=image video"`
	Name string `json:"name"`
	Data string `json:"data"`
	URL  string `json:"url" validate:"omitempty,url"`
}

// CreateIncidentRequest is the report form submission.
type CreateIncidentRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Priority    string            `json:"priority"`
	Location    string            `json:"location"`
	Attachments []AttachmentInput `json:"attachments" validate:"omitempty,dive"`
}

// UpdateIncidentStatusRequest moves an incident through the workflow.
type UpdateIncidentStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AddNoteRequest appends a note to an incident.
type AddNoteRequest struct {
	Content string `json:"content"`
}

// BatchNotifyRequest sends a message to the creators of the selected incidents.
type BatchNotifyRequest struct {
	IncidentIDs []string `json:"incident_ids" validate:"required,min=1"`
	Subject     string   `json:"subject"`
	Message     string   `json:"message" validate:"required"`
}

// BatchNotifyResponse reports how many messages were queued.
type BatchNotifyResponse struct {
	Queued int `json:"queued"`
}

// ImportIncidentsRequest carries delimited text for bulk import.
type ImportIncidentsRequest struct {
	Text string `json:"text" validate:"required"`
}

// ImportResult reports the outcome of a bulk import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// IncidentQuery mirrors the list endpoint filters.
type IncidentQuery struct {
	Status   string `form:"status"`
	Category string `form:"category"`
	Sort     string `form:"sort"`
}

// AttachmentResponse is an attachment as exposed to clients; stored files carry a signed URL.
type AttachmentResponse struct {
	ID        string                `json:"id"`
	Type      models.AttachmentType `json:"type"`
	URL       string                `json:"url"`
	Name      string                `json:"name"`
	MimeType  string                `json:"mime_type,omitempty"`
	Size      int64                 `json:"size,omitempty"`
	ExpiresAt *time.Time            `json:"expires_at,omitempty"`
}

// IncidentResponse is the wire form of an incident.
type IncidentResponse struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Category    string                  `json:"category"`
	Status      models.IncidentStatus   `json:"status"`
	Priority    models.IncidentPriority `json:"priority"`
	Location    string                  `json:"location"`
	UserID      string                  `json:"user_id"`
	UserName    string                  `json:"user_name"`
	UserHouse   string                  `json:"user_house"`
	Attachments []AttachmentResponse    `json:"attachments"`
	Notes       []models.IncidentNote   `json:"notes"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}
