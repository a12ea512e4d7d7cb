package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/models"
	"github.com/noah-isme/incident-portal-api/internal/repository"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

// UnknownUserName is stored on incidents whose creator cannot be resolved.
const UnknownUserName = "Usuario desconocido"

type incidentRepository interface {
	List(ctx context.Context) ([]models.Incident, error)
	FindByID(ctx context.Context, id string) (*models.Incident, error)
	Create(ctx context.Context, incident *models.Incident) error
	UpdateStatus(ctx context.Context, id string, status models.IncidentStatus, at time.Time) (*models.Incident, error)
	AppendNote(ctx context.Context, id string, note models.IncidentNote, at time.Time) (*models.Incident, error)
	Delete(ctx context.Context, id string) (models.Attachments, error)
	ListRecipients(ctx context.Context, ids []string) ([]models.IncidentRecipient, error)
}

type incidentUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type incidentConfigReader interface {
	GetConfig(ctx context.Context) (*models.AppConfig, error)
	ResolveSortOption(ctx context.Context, id string) (*models.SortOptionConfig, error)
}

type incidentAttachments interface {
	Store(ctx context.Context, incidentID string, inputs []dto.AttachmentInput) (models.Attachments, error)
	Present(incidentID string, atts models.Attachments) []dto.AttachmentResponse
	Remove(ctx context.Context, atts models.Attachments)
}

type incidentNotifier interface {
	NotifyIncidentCreators(ctx context.Context, recipients []models.IncidentRecipient, subject, body string) (int, error)
}

type incidentAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// IncidentService implements the incident workflow: reporting, triage, notes and
// bulk operations.
type IncidentService struct {
	repo        incidentRepository
	users       incidentUserReader
	configs     incidentConfigReader
	attachments incidentAttachments
	notifier    incidentNotifier
	audit       incidentAuditLogger
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewIncidentService constructs an IncidentService.
func NewIncidentService(repo incidentRepository, users incidentUserReader, configs incidentConfigReader, attachments incidentAttachments, notifier incidentNotifier, audit incidentAuditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *IncidentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncidentService{
		repo:        repo,
		users:       users,
		configs:     configs,
		attachments: attachments,
		notifier:    notifier,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List returns incidents newest first, filtered and ordered by the view. The sort id
// is resolved against the active sort options; unknown ids leave the default order.
func (s *IncidentService) List(ctx context.Context, query dto.IncidentQuery) ([]models.Incident, error) {
	incidents, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list incidents")
	}
	view, err := s.resolveView(ctx, query)
	if err != nil {
		return nil, err
	}
	return ApplyIncidentView(incidents, view), nil
}

func (s *IncidentService) resolveView(ctx context.Context, query dto.IncidentQuery) (IncidentView, error) {
	view := IncidentView{Status: query.Status, Category: query.Category}
	if query.Sort == "" {
		return view, nil
	}
	opt, err := s.configs.ResolveSortOption(ctx, query.Sort)
	if err != nil {
		return view, err
	}
	view.Sort = opt
	return view, nil
}

// Get returns one incident.
func (s *IncidentService) Get(ctx context.Context, id string) (*models.Incident, error) {
	incident, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrIncidentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incident")
	}
	return incident, nil
}

// Create records a new report from the acting user.
func (s *IncidentService) Create(ctx context.Context, req dto.CreateIncidentRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.Incident, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "los adjuntos no son válidos")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, validationError("el título es obligatorio")
	}

	category := strings.TrimSpace(req.Category)
	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.HasCategory(category) {
		return nil, validationError("la categoría %q no existe", category)
	}

	priority := models.IncidentPriority(strings.ToLower(strings.TrimSpace(req.Priority)))
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.IsValid() {
		return nil, validationError("la prioridad debe ser baja, media, alta o urgente")
	}

	now := s.now()
	incident := &models.Incident{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Category:    category,
		Status:      models.IncidentStatusPending,
		Priority:    priority,
		Location:    strings.TrimSpace(req.Location),
		Notes:       models.IncidentNotes{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.stampCreator(ctx, incident, actor)

	attachments := models.Attachments{}
	if len(req.Attachments) > 0 {
		attachments, err = s.attachments.Store(ctx, incident.ID, req.Attachments)
		if err != nil {
			return nil, err
		}
	}
	incident.Attachments = attachments

	if err := s.repo.Create(ctx, incident); err != nil {
		s.attachments.Remove(ctx, attachments)
		return nil, writeError(err)
	}
	s.metrics.RecordIncidentCreated("form")

	newValues, _ := json.Marshal(map[string]interface{}{"title": incident.Title, "category": incident.Category, "priority": incident.Priority, "attachments": len(attachments)})
	s.recordAudit(ctx, actor, models.AuditActionIncidentCreate, incident.ID, nil, newValues, meta)
	return incident, nil
}

// writeError keeps a full database distinguishable from other write failures.
func writeError(err error) error {
	if errors.Is(err, repository.ErrCapacity) {
		return appErrors.CloneWrap(appErrors.ErrCapacity, err, "")
	}
	return appErrors.CloneWrap(appErrors.ErrStorage, err, "")
}

// stampCreator snapshots the creator's display name and house on the incident.
func (s *IncidentService) stampCreator(ctx context.Context, incident *models.Incident, actor *models.JWTClaims) {
	incident.UserName = UnknownUserName
	if actor == nil || actor.UserID == "" {
		return
	}
	incident.UserID = actor.UserID
	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to resolve incident creator", zap.String("user_id", actor.UserID), zap.Error(err))
		}
		return
	}
	incident.UserName = user.DisplayName()
	incident.UserHouse = user.HouseNumber
}

// UpdateStatus sets any workflow status on an existing incident.
func (s *IncidentService) UpdateStatus(ctx context.Context, id string, req dto.UpdateIncidentStatusRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.Incident, error) {
	status := models.IncidentStatus(strings.TrimSpace(req.Status))
	if !status.IsValid() {
		return nil, validationError("estado no válido: %q", req.Status)
	}

	incident, err := s.repo.UpdateStatus(ctx, id, status, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrIncidentNotFound
		}
		return nil, appErrors.CloneWrap(appErrors.ErrStorage, err, "")
	}
	s.metrics.RecordStatusChange(string(status))

	newValues, _ := json.Marshal(map[string]string{"status": string(status)})
	s.recordAudit(ctx, actor, models.AuditActionIncidentStatus, id, nil, newValues, meta)
	return incident, nil
}

// AddNote appends a note written by authorName.
func (s *IncidentService) AddNote(ctx context.Context, id string, req dto.AddNoteRequest, authorName string, actor *models.JWTClaims, meta models.LoginRequest) (*models.IncidentNote, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, validationError("la nota no puede estar vacía")
	}
	if strings.TrimSpace(authorName) == "" {
		authorName = UnknownUserName
	}

	now := s.now()
	note := models.IncidentNote{
		ID:         uuid.NewString(),
		Content:    content,
		AuthorName: authorName,
		CreatedAt:  now,
	}
	if _, err := s.repo.AppendNote(ctx, id, note, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrIncidentNotFound
		}
		return nil, writeError(err)
	}
	s.metrics.RecordNote()

	newValues, _ := json.Marshal(map[string]string{"note_id": note.ID})
	s.recordAudit(ctx, actor, models.AuditActionIncidentNote, id, nil, newValues, meta)
	return &note, nil
}

// Delete removes an incident and its stored files. Deleting a missing incident succeeds.
func (s *IncidentService) Delete(ctx context.Context, id string, actor *models.JWTClaims, meta models.LoginRequest) error {
	attachments, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.CloneWrap(appErrors.ErrStorage, err, "")
	}
	if attachments == nil {
		return nil
	}
	s.attachments.Remove(ctx, attachments)
	s.recordAudit(ctx, actor, models.AuditActionIncidentDelete, id, nil, nil, meta)
	return nil
}

// BatchNotify queues one message per subscribed creator of the selected incidents and
// returns how many were queued.
func (s *IncidentService) BatchNotify(ctx context.Context, req dto.BatchNotifyRequest, actor *models.JWTClaims, meta models.LoginRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "selecciona incidencias y escribe un mensaje")
	}
	body := strings.TrimSpace(req.Message)
	if body == "" {
		return 0, validationError("el mensaje no puede estar vacío")
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = "Actualización sobre tu incidencia"
	}

	recipients, err := s.repo.ListRecipients(ctx, uniqueStrings(req.IncidentIDs))
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve recipients")
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	queued, err := s.notifier.NotifyIncidentCreators(ctx, recipients, subject, body)
	if err != nil && queued == 0 {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "no se pudieron enviar las notificaciones")
	}
	if err != nil {
		s.logger.Warn("some notifications were not queued", zap.Int("queued", queued), zap.Error(err))
	}

	newValues, _ := json.Marshal(map[string]interface{}{"incidents": len(req.IncidentIDs), "queued": queued})
	s.recordAudit(ctx, actor, models.AuditActionIncidentNotify, "", nil, newValues, meta)
	return queued, nil
}

// Present converts an incident to its client form with signed attachment links.
func (s *IncidentService) Present(incident models.Incident) dto.IncidentResponse {
	notes := []models.IncidentNote(incident.Notes)
	if notes == nil {
		notes = []models.IncidentNote{}
	}
	return dto.IncidentResponse{
		ID:          incident.ID,
		Title:       incident.Title,
		Description: incident.Description,
		Category:    incident.Category,
		Status:      incident.Status,
		Priority:    incident.Priority,
		Location:    incident.Location,
		UserID:      incident.UserID,
		UserName:    incident.UserName,
		UserHouse:   incident.UserHouse,
		Attachments: s.attachments.Present(incident.ID, incident.Attachments),
		Notes:       notes,
		CreatedAt:   incident.CreatedAt,
		UpdatedAt:   incident.UpdatedAt,
	}
}

// PresentAll converts a list of incidents.
func (s *IncidentService) PresentAll(incidents []models.Incident) []dto.IncidentResponse {
	out := make([]dto.IncidentResponse, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, s.Present(inc))
	}
	return out
}

func (s *IncidentService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, oldValues, newValues []byte, meta models.LoginRequest) {
	if s.audit == nil {
		return
	}
	var rid *string
	if resourceID != "" {
		rid = &resourceID
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     action,
		Resource:   models.AuditResourceIncident,
		ResourceID: rid,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record incident audit log", zap.String("action", action), zap.Error(err))
	}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
