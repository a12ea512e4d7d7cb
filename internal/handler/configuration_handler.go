package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/middleware"
	"github.com/noah-isme/incident-portal-api/internal/models"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
	"github.com/noah-isme/incident-portal-api/pkg/response"
)

type configurationService interface {
	ReadConfig(ctx context.Context) (*models.AppConfig, bool, error)
	SaveConfig(ctx context.Context, req dto.SaveAppConfigRequest, actor *models.JWTClaims) (*models.AppConfig, error)
	AddCategory(ctx context.Context, name string, actor *models.JWTClaims) (bool, *models.AppConfig, error)
	RemoveCategory(ctx context.Context, name string, actor *models.JWTClaims) (*models.AppConfig, error)
	MoveCategory(ctx context.Context, name string, delta int, actor *models.JWTClaims) (*models.AppConfig, error)
	AddSortOption(ctx context.Context, req dto.SortOptionRequest, actor *models.JWTClaims) (*models.AppConfig, error)
	UpdateSortOption(ctx context.Context, id string, req dto.SortOptionRequest, actor *models.JWTClaims) (*models.AppConfig, error)
	DeleteSortOption(ctx context.Context, id string, actor *models.JWTClaims) (*models.AppConfig, error)
	SetSortOptionActive(ctx context.Context, id string, active bool, actor *models.JWTClaims) (*models.AppConfig, error)
	AddUserField(ctx context.Context, req dto.UserFieldRequest, actor *models.JWTClaims) (*models.AppConfig, error)
	UpdateUserField(ctx context.Context, id string, req dto.UserFieldRequest, actor *models.JWTClaims) (*models.AppConfig, error)
	DeleteUserField(ctx context.Context, id string, actor *models.JWTClaims) (*models.AppConfig, error)
	SetUserFieldActive(ctx context.Context, id string, active bool, actor *models.JWTClaims) (*models.AppConfig, error)
	SetPendingAccountMessage(ctx context.Context, message string, actor *models.JWTClaims) (*models.AppConfig, error)
}

// ConfigurationHandler exposes the portal settings document.
type ConfigurationHandler struct {
	service configurationService
}

// NewConfigurationHandler builds a new handler.
func NewConfigurationHandler(service configurationService) *ConfigurationHandler {
	return &ConfigurationHandler{service: service}
}

// Get godoc
// @Summary Get portal configuration
// @Description Categories, sort options, registration fields and the pending account message.
// @Description Administrators also receive inactive sort options and fields; everyone else sees active entries only.
// @Tags Configuration
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /config [get]
func (h *ConfigurationHandler) Get(c *gin.Context) {
	cfg, cacheHit, err := h.service.ReadConfig(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims == nil || claims.Role != models.RoleAdmin {
		cfg = cfg.ActiveOnly()
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, cfg, nil, middleware.ExtractMeta(c))
}

// Save godoc
// @Summary Replace portal configuration
// @Tags Configuration
// @Accept json
// @Produce json
// @Param payload body dto.SaveAppConfigRequest true "Configuration document"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /config [put]
func (h *ConfigurationHandler) Save(c *gin.Context) {
	var req dto.SaveAppConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "configuración no válida"))
		return
	}
	h.respond(c)(h.service.SaveConfig(c.Request.Context(), req, claimsFromContext(c)))
}

// AddCategory godoc
// @Summary Add incident category
// @Description Adding an existing name is a no-op reported with added=false
// @Tags Configuration
// @Accept json
// @Produce json
// @Param payload body dto.CategoryRequest true "Category"
// @Success 200 {object} response.Envelope
// @Router /config/categories [post]
func (h *ConfigurationHandler) AddCategory(c *gin.Context) {
	var req dto.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "categoría no válida"))
		return
	}

	added, cfg, err := h.service.AddCategory(c.Request.Context(), req.Name, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	response.JSON(c, status, dto.AddCategoryResponse{Added: added, Config: cfg}, nil)
}

// RemoveCategory godoc
// @Summary Remove incident category
// @Tags Configuration
// @Param name path string true "Category name"
// @Success 200 {object} response.Envelope
// @Router /config/categories/{name} [delete]
func (h *ConfigurationHandler) RemoveCategory(c *gin.Context) {
	h.respond(c)(h.service.RemoveCategory(c.Request.Context(), c.Param("name"), claimsFromContext(c)))
}

// MoveCategory godoc
// @Summary Reorder incident category
// @Tags Configuration
// @Accept json
// @Param name path string true "Category name"
// @Param payload body dto.MoveCategoryRequest true "Offset"
// @Success 200 {object} response.Envelope
// @Router /config/categories/{name}/move [post]
func (h *ConfigurationHandler) MoveCategory(c *gin.Context) {
	var req dto.MoveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "desplazamiento no válido"))
		return
	}
	h.respond(c)(h.service.MoveCategory(c.Request.Context(), c.Param("name"), req.Delta, claimsFromContext(c)))
}

// AddSortOption godoc
// @Summary Add sort option
// @Tags Configuration
// @Accept json
// @Param payload body dto.SortOptionRequest true "Sort option"
// @Success 200 {object} response.Envelope
// @Router /config/sort-options [post]
func (h *ConfigurationHandler) AddSortOption(c *gin.Context) {
	var req dto.SortOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "opción de orden no válida"))
		return
	}
	h.respond(c)(h.service.AddSortOption(c.Request.Context(), req, claimsFromContext(c)))
}

// UpdateSortOption godoc
// @Summary Update sort option
// @Tags Configuration
// @Accept json
// @Param id path string true "Sort option ID"
// @Param payload body dto.SortOptionRequest true "Sort option"
// @Success 200 {object} response.Envelope
// @Router /config/sort-options/{id} [put]
func (h *ConfigurationHandler) UpdateSortOption(c *gin.Context) {
	var req dto.SortOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "opción de orden no válida"))
		return
	}
	h.respond(c)(h.service.UpdateSortOption(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)))
}

// DeleteSortOption godoc
// @Summary Delete sort option
// @Tags Configuration
// @Param id path string true "Sort option ID"
// @Success 200 {object} response.Envelope
// @Router /config/sort-options/{id} [delete]
func (h *ConfigurationHandler) DeleteSortOption(c *gin.Context) {
	h.respond(c)(h.service.DeleteSortOption(c.Request.Context(), c.Param("id"), claimsFromContext(c)))
}

// ToggleSortOption godoc
// @Summary Enable or disable sort option
// @Tags Configuration
// @Accept json
// @Param id path string true "Sort option ID"
// @Param payload body dto.ToggleActiveRequest true "State"
// @Success 200 {object} response.Envelope
// @Router /config/sort-options/{id}/active [patch]
func (h *ConfigurationHandler) ToggleSortOption(c *gin.Context) {
	active, ok := bindToggle(c)
	if !ok {
		return
	}
	h.respond(c)(h.service.SetSortOptionActive(c.Request.Context(), c.Param("id"), active, claimsFromContext(c)))
}

// AddUserField godoc
// @Summary Add registration field
// @Tags Configuration
// @Accept json
// @Param payload body dto.UserFieldRequest true "Field"
// @Success 200 {object} response.Envelope
// @Router /config/user-fields [post]
func (h *ConfigurationHandler) AddUserField(c *gin.Context) {
	var req dto.UserFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "campo no válido"))
		return
	}
	h.respond(c)(h.service.AddUserField(c.Request.Context(), req, claimsFromContext(c)))
}

// UpdateUserField godoc
// @Summary Update registration field
// @Tags Configuration
// @Accept json
// @Param id path string true "Field ID"
// @Param payload body dto.UserFieldRequest true "Field"
// @Success 200 {object} response.Envelope
// @Router /config/user-fields/{id} [put]
func (h *ConfigurationHandler) UpdateUserField(c *gin.Context) {
	var req dto.UserFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "campo no válido"))
		return
	}
	h.respond(c)(h.service.UpdateUserField(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)))
}

// DeleteUserField godoc
// @Summary Delete registration field
// @Tags Configuration
// @Param id path string true "Field ID"
// @Success 200 {object} response.Envelope
// @Router /config/user-fields/{id} [delete]
func (h *ConfigurationHandler) DeleteUserField(c *gin.Context) {
	h.respond(c)(h.service.DeleteUserField(c.Request.Context(), c.Param("id"), claimsFromContext(c)))
}

// ToggleUserField godoc
// @Summary Show or hide registration field
// @Tags Configuration
// @Accept json
// @Param id path string true "Field ID"
// @Param payload body dto.ToggleActiveRequest true "State"
// @Success 200 {object} response.Envelope
// @Router /config/user-fields/{id}/active [patch]
func (h *ConfigurationHandler) ToggleUserField(c *gin.Context) {
	active, ok := bindToggle(c)
	if !ok {
		return
	}
	h.respond(c)(h.service.SetUserFieldActive(c.Request.Context(), c.Param("id"), active, claimsFromContext(c)))
}

// SetPendingMessage godoc
// @Summary Set the message shown to pending accounts
// @Tags Configuration
// @Accept json
// @Param payload body dto.PendingMessageRequest true "Message"
// @Success 200 {object} response.Envelope
// @Router /config/pending-message [put]
func (h *ConfigurationHandler) SetPendingMessage(c *gin.Context) {
	var req dto.PendingMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "mensaje no válido"))
		return
	}
	h.respond(c)(h.service.SetPendingAccountMessage(c.Request.Context(), req.Message, claimsFromContext(c)))
}

// respond writes the updated document or the error of a mutation.
func (h *ConfigurationHandler) respond(c *gin.Context) func(*models.AppConfig, error) {
	return func(cfg *models.AppConfig, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, cfg)
	}
}

func bindToggle(c *gin.Context) (bool, bool) {
	var req dto.ToggleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "estado no válido"))
		return false, false
	}
	if req.Active == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "indica si la opción está activa"))
		return false, false
	}
	return *req.Active, true
}
