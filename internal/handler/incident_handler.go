package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/middleware"
	"github.com/noah-isme/incident-portal-api/internal/models"
	"github.com/noah-isme/incident-portal-api/internal/service"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
	"github.com/noah-isme/incident-portal-api/pkg/response"
)

// maxImportBytes bounds the delimited text accepted by the import endpoint.
const maxImportBytes = 2 << 20

type incidentService interface {
	List(ctx context.Context, query dto.IncidentQuery) ([]models.Incident, error)
	Get(ctx context.Context, id string) (*models.Incident, error)
	Create(ctx context.Context, req dto.CreateIncidentRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.Incident, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateIncidentStatusRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.Incident, error)
	AddNote(ctx context.Context, id string, req dto.AddNoteRequest, authorName string, actor *models.JWTClaims, meta models.LoginRequest) (*models.IncidentNote, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims, meta models.LoginRequest) error
	BatchNotify(ctx context.Context, req dto.BatchNotifyRequest, actor *models.JWTClaims, meta models.LoginRequest) (int, error)
	Import(ctx context.Context, req dto.ImportIncidentsRequest, actor *models.JWTClaims, meta models.LoginRequest) (*dto.ImportResult, error)
	Present(incident models.Incident) dto.IncidentResponse
	PresentAll(incidents []models.Incident) []dto.IncidentResponse
}

type incidentExporter interface {
	Export(ctx context.Context, query dto.IncidentQuery, format string) (*service.ExportResult, error)
}

type sessionReader interface {
	GetSession(ctx context.Context, userID string) (*models.UserInfo, error)
}

// IncidentHandler exposes incident reporting and triage endpoints.
type IncidentHandler struct {
	service  incidentService
	exporter incidentExporter
	sessions sessionReader
}

// NewIncidentHandler builds a new handler.
func NewIncidentHandler(svc incidentService, exporter incidentExporter, sessions sessionReader) *IncidentHandler {
	return &IncidentHandler{service: svc, exporter: exporter, sessions: sessions}
}

// List godoc
// @Summary List incidents
// @Description Newest first unless an active sort option is selected
// @Tags Incidents
// @Produce json
// @Param status query string false "all, active, resolved or an exact status"
// @Param category query string false "Category name, or all for every category. all cannot be used as a category name"
// @Param sort query string false "Sort option ID"
// @Success 200 {object} response.Envelope
// @Router /incidents [get]
func (h *IncidentHandler) List(c *gin.Context) {
	var query dto.IncidentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err, "filtros no válidos"))
		return
	}

	incidents, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["count"] = len(incidents)
	response.JSON(c, http.StatusOK, h.service.PresentAll(incidents), nil, meta)
}

// Get godoc
// @Summary Get incident
// @Tags Incidents
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /incidents/{id} [get]
func (h *IncidentHandler) Get(c *gin.Context) {
	incident, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.service.Present(*incident))
}

// Create godoc
// @Summary Report an incident
// @Tags Incidents
// @Accept json
// @Produce json
// @Param payload body dto.CreateIncidentRequest true "Incident"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 507 {object} response.Envelope
// @Router /incidents [post]
func (h *IncidentHandler) Create(c *gin.Context) {
	var req dto.CreateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "incidencia no válida"))
		return
	}

	incident, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.service.Present(*incident))
}

// UpdateStatus godoc
// @Summary Change incident status
// @Tags Incidents
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Param payload body dto.UpdateIncidentStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /incidents/{id}/status [patch]
func (h *IncidentHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateIncidentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "estado no válido"))
		return
	}

	incident, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.service.Present(*incident))
}

// AddNote godoc
// @Summary Add a note
// @Description The author is the display name of the current user
// @Tags Incidents
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Param payload body dto.AddNoteRequest true "Note"
// @Success 201 {object} response.Envelope
// @Router /incidents/{id}/notes [post]
func (h *IncidentHandler) AddNote(c *gin.Context) {
	var req dto.AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "nota no válida"))
		return
	}

	claims := claimsFromContext(c)
	note, err := h.service.AddNote(c.Request.Context(), c.Param("id"), req, h.authorName(c, claims), claims, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, note)
}

func (h *IncidentHandler) authorName(c *gin.Context, claims *models.JWTClaims) string {
	if claims == nil {
		return ""
	}
	if h.sessions != nil {
		if info, err := h.sessions.GetSession(c.Request.Context(), claims.UserID); err == nil && info.FullName != "" {
			return info.FullName
		}
	}
	return claims.Username
}

// Delete godoc
// @Summary Delete incident
// @Description Deleting a missing incident also succeeds
// @Tags Incidents
// @Param id path string true "Incident ID"
// @Success 204
// @Router /incidents/{id} [delete]
func (h *IncidentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BatchNotify godoc
// @Summary Message the reporters of selected incidents
// @Description Only reporters that accept emails are contacted; delivery is asynchronous
// @Tags Incidents
// @Accept json
// @Produce json
// @Param payload body dto.BatchNotifyRequest true "Message"
// @Success 202 {object} response.Envelope
// @Router /incidents/notify [post]
func (h *IncidentHandler) BatchNotify(c *gin.Context) {
	var req dto.BatchNotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "mensaje no válido"))
		return
	}

	queued, err := h.service.BatchNotify(c.Request.Context(), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.BatchNotifyResponse{Queued: queued})
}

// Import godoc
// @Summary Import incidents from comma separated text
// @Description One incident per line: title,description,category,priority,location,image_url. Values cannot contain commas.
// @Tags Incidents
// @Accept plain
// @Accept json
// @Produce json
// @Param payload body dto.ImportIncidentsRequest true "Text"
// @Success 200 {object} response.Envelope
// @Router /incidents/import [post]
func (h *IncidentHandler) Import(c *gin.Context) {
	var req dto.ImportIncidentsRequest
	if strings.HasPrefix(c.ContentType(), "text/") {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes+1))
		if err != nil {
			response.Error(c, invalidPayload(err, "no se pudo leer el texto"))
			return
		}
		if len(raw) > maxImportBytes {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "el texto a importar es demasiado grande"))
			return
		}
		req.Text = string(raw)
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "texto de importación no válido"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "no hay nada que importar"))
		return
	}

	result, err := h.service.Import(c.Request.Context(), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Export godoc
// @Summary Export incidents
// @Description Renders the filtered and sorted list as CSV or PDF
// @Tags Incidents
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Param sort query string false "Sort option ID"
// @Success 200 {file} file
// @Router /incidents/export [get]
func (h *IncidentHandler) Export(c *gin.Context) {
	var query dto.IncidentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err, "filtros no válidos"))
		return
	}

	result, err := h.exporter.Export(c.Request.Context(), query, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, result.Filename, result.ContentType, result.Data)
}
