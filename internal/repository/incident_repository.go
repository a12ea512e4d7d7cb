package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/incident-portal-api/internal/models"
)

const incidentColumns = `id, title, description, category, status, priority, location, user_id, user_name, user_house, attachments, notes, created_at, updated_at`

// IncidentRepository persists incident reports. Notes and attachments live in JSONB columns
// so every mutation is a single statement on one row.
type IncidentRepository struct {
	db *sqlx.DB
}

// NewIncidentRepository constructs the repository.
func NewIncidentRepository(db *sqlx.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// List returns every incident, newest first.
func (r *IncidentRepository) List(ctx context.Context) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents ORDER BY created_at DESC, id DESC`
	var incidents []models.Incident
	if err := r.db.SelectContext(ctx, &incidents, query); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return incidents, nil
}

// FindByID returns an incident by identifier.
func (r *IncidentRepository) FindByID(ctx context.Context, id string) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	var incident models.Incident
	if err := r.db.GetContext(ctx, &incident, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find incident: %w", err)
	}
	return &incident, nil
}

// Create inserts an incident, assigning id and timestamps when missing.
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now().UTC()
	}
	if incident.UpdatedAt.Before(incident.CreatedAt) {
		incident.UpdatedAt = incident.CreatedAt
	}
	if incident.Attachments == nil {
		incident.Attachments = models.Attachments{}
	}
	if incident.Notes == nil {
		incident.Notes = models.IncidentNotes{}
	}

	const query = `INSERT INTO incidents (id, title, description, category, status, priority, location, user_id, user_name, user_house, attachments, notes, created_at, updated_at)
VALUES (:id, :title, :description, :category, :status, :priority, :location, :user_id, :user_name, :user_house, :attachments, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, incident); err != nil {
		return fmt.Errorf("create incident: %w", mapCapacity(err))
	}
	return nil
}

// UpdateStatus sets the status and moves updated_at forward, never backwards.
// It returns sql.ErrNoRows when the incident does not exist.
func (r *IncidentRepository) UpdateStatus(ctx context.Context, id string, status models.IncidentStatus, at time.Time) (*models.Incident, error) {
	query := `UPDATE incidents SET status = $2, updated_at = GREATEST(updated_at, $3) WHERE id = $1 RETURNING ` + incidentColumns
	var incident models.Incident
	if err := r.db.GetContext(ctx, &incident, query, id, status, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update incident status: %w", err)
	}
	return &incident, nil
}

// AppendNote adds a note to the end of the thread in one statement.
// It returns sql.ErrNoRows when the incident does not exist.
func (r *IncidentRepository) AppendNote(ctx context.Context, id string, note models.IncidentNote, at time.Time) (*models.Incident, error) {
	query := `UPDATE incidents SET notes = COALESCE(notes, '[]'::jsonb) || $2::jsonb, updated_at = GREATEST(updated_at, $3) WHERE id = $1 RETURNING ` + incidentColumns
	var incident models.Incident
	if err := r.db.GetContext(ctx, &incident, query, id, models.IncidentNotes{note}, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("append incident note: %w", mapCapacity(err))
	}
	return &incident, nil
}

// Delete removes an incident and returns its attachments for cleanup.
// Deleting a missing incident returns nil attachments and no error.
func (r *IncidentRepository) Delete(ctx context.Context, id string) (models.Attachments, error) {
	const query = `DELETE FROM incidents WHERE id = $1 RETURNING attachments`
	var attachments models.Attachments
	if err := r.db.GetContext(ctx, &attachments, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("delete incident: %w", err)
	}
	return attachments, nil
}

// ListRecipients resolves the creators of the given incidents that opted in to email.
func (r *IncidentRepository) ListRecipients(ctx context.Context, ids []string) ([]models.IncidentRecipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT u.id::text AS user_id, u.username, u.full_name, u.email
FROM incidents i JOIN users u ON u.id::text = i.user_id
WHERE i.id::text = ANY($1) AND u.receive_emails = TRUE AND u.email <> ''
ORDER BY u.username`
	var recipients []models.IncidentRecipient
	if err := r.db.SelectContext(ctx, &recipients, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list incident recipients: %w", err)
	}
	return recipients, nil
}
