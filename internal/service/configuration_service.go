package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/models"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

type appConfigRepository interface {
	Get(ctx context.Context, key string) (*models.Configuration, error)
	Upsert(ctx context.Context, cfg *models.Configuration) error
}

type configurationAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// errCorruptConfig marks a stored settings document that cannot be decoded.
var errCorruptConfig = errors.New("stored configuration is not valid JSON")

// storedAppConfig mirrors every shape the settings document has had. Pointer
// fields distinguish a missing section from an empty one.
type storedAppConfig struct {
	Categories            *[]string                  `json:"categories"`
	SortOptions           *[]models.SortOptionConfig `json:"sortOptions"`
	UserFields            *[]models.UserFieldConfig  `json:"userFields"`
	CustomFields          []string                   `json:"customFields"`
	PendingAccountMessage *string                    `json:"pendingAccountMessage"`
}

// ConfigurationService owns the portal settings document: categories, sort options,
// registration fields and the pending-account message.
type ConfigurationService struct {
	repo      appConfigRepository
	audit     configurationAuditLogger
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger

	mu sync.Mutex
}

// NewConfigurationService constructs a ConfigurationService.
func NewConfigurationService(repo appConfigRepository, audit configurationAuditLogger, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *ConfigurationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigurationService{
		repo:      repo,
		audit:     audit,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// GetConfig returns the current settings, creating or upgrading the stored document
// when needed. A corrupted document never fails a read; defaults are served instead.
func (s *ConfigurationService) GetConfig(ctx context.Context) (*models.AppConfig, error) {
	cfg, _, err := s.ReadConfig(ctx)
	return cfg, err
}

// ReadConfig is GetConfig that also reports whether the document came from cache.
func (s *ConfigurationService) ReadConfig(ctx context.Context) (*models.AppConfig, bool, error) {
	var cached models.AppConfig
	if hit, _ := s.cache.Get(ctx, cacheKeyAppConfig, &cached); hit {
		return &cached, true, nil
	}

	cfg, err := s.load(ctx)
	if err != nil {
		if errors.Is(err, errCorruptConfig) {
			s.logger.Warn("stored configuration is corrupted, serving defaults", zap.Error(err))
			return DefaultAppConfig(), false, nil
		}
		return nil, false, err
	}
	_ = s.cache.Set(ctx, cacheKeyAppConfig, cfg, s.cacheTTL)
	return cfg, false, nil
}

// SaveConfig validates and replaces the whole document. It is also the recovery
// path for a corrupted document.
func (s *ConfigurationService) SaveConfig(ctx context.Context, req dto.SaveAppConfigRequest, actor *models.JWTClaims) (*models.AppConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "configuración no válida")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := req.ToModel().Clone()
	normalizeAppConfig(next)
	if next.PendingAccountMessage == "" {
		next.PendingAccountMessage = DefaultPendingAccountMessage
	}
	if err := validateAppConfig(next); err != nil {
		return nil, err
	}

	var prev []byte
	if current, err := s.repo.Get(ctx, models.AppConfigKey); err == nil {
		prev = current.Value
	}
	if err := s.persist(ctx, next, actor, prev); err != nil {
		return nil, err
	}
	return next, nil
}

// AddCategory appends a category unless an identical name already exists.
// The boolean reports whether the list changed.
func (s *ConfigurationService) AddCategory(ctx context.Context, name string, actor *models.JWTClaims) (bool, *models.AppConfig, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil, validationError("el nombre de la categoría no puede estar vacío")
	}
	if err := checkCategoryName(name); err != nil {
		return false, nil, err
	}
	added := false
	cfg, err := s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		if cfg.HasCategory(name) {
			return false, nil
		}
		cfg.Categories = append(cfg.Categories, name)
		added = true
		return true, nil
	})
	if err != nil {
		return false, nil, err
	}
	return added, cfg, nil
}

// RemoveCategory drops a category. Incidents keep their stored category name.
func (s *ConfigurationService) RemoveCategory(ctx context.Context, name string, actor *models.JWTClaims) (*models.AppConfig, error) {
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		idx := indexOf(cfg.Categories, name)
		if idx < 0 {
			return false, appErrors.Clone(appErrors.ErrNotFound, "categoría no encontrada")
		}
		cfg.Categories = append(cfg.Categories[:idx], cfg.Categories[idx+1:]...)
		return true, nil
	})
}

// MoveCategory shifts a category by delta positions, clamped to the list bounds.
func (s *ConfigurationService) MoveCategory(ctx context.Context, name string, delta int, actor *models.JWTClaims) (*models.AppConfig, error) {
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		idx := indexOf(cfg.Categories, name)
		if idx < 0 {
			return false, appErrors.Clone(appErrors.ErrNotFound, "categoría no encontrada")
		}
		target := idx + delta
		if target < 0 {
			target = 0
		}
		if target > len(cfg.Categories)-1 {
			target = len(cfg.Categories) - 1
		}
		if target == idx {
			return false, nil
		}
		item := cfg.Categories[idx]
		cfg.Categories = append(cfg.Categories[:idx], cfg.Categories[idx+1:]...)
		cfg.Categories = append(cfg.Categories[:target], append([]string{item}, cfg.Categories[target:]...)...)
		return true, nil
	})
}

// AddSortOption registers a new ordering. Without an explicit id one is derived from the label.
func (s *ConfigurationService) AddSortOption(ctx context.Context, req dto.SortOptionRequest, actor *models.JWTClaims) (*models.AppConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "opción de ordenación no válida")
	}
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		taken := func(id string) bool {
			_, ok := cfg.SortOption(id)
			return ok
		}
		id := strings.TrimSpace(req.ID)
		if id == "" {
			id = uniqueID(slugify(req.Label), taken)
		} else if taken(id) {
			return false, appErrors.Clone(appErrors.ErrConflict, "ya existe una opción de ordenación con ese identificador")
		}
		cfg.SortOptions = append(cfg.SortOptions, models.SortOptionConfig{
			ID:        id,
			Label:     req.Label,
			Field:     req.Field,
			Direction: models.SortDirection(req.Direction),
			Active:    req.Active == nil || *req.Active,
		})
		return true, nil
	})
}

// UpdateSortOption edits label, field, direction and optionally the active flag.
func (s *ConfigurationService) UpdateSortOption(ctx context.Context, id string, req dto.SortOptionRequest, actor *models.JWTClaims) (*models.AppConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "opción de ordenación no válida")
	}
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		opt, ok := cfg.SortOption(id)
		if !ok {
			return false, appErrors.Clone(appErrors.ErrNotFound, "opción de ordenación no encontrada")
		}
		opt.Label = req.Label
		opt.Field = req.Field
		opt.Direction = models.SortDirection(req.Direction)
		if req.Active != nil {
			opt.Active = *req.Active
		}
		return true, nil
	})
}

// DeleteSortOption removes an ordering.
func (s *ConfigurationService) DeleteSortOption(ctx context.Context, id string, actor *models.JWTClaims) (*models.AppConfig, error) {
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		for i := range cfg.SortOptions {
			if cfg.SortOptions[i].ID == id {
				cfg.SortOptions = append(cfg.SortOptions[:i], cfg.SortOptions[i+1:]...)
				return true, nil
			}
		}
		return false, appErrors.Clone(appErrors.ErrNotFound, "opción de ordenación no encontrada")
	})
}

// SetSortOptionActive toggles whether the ordering is offered on the incident list.
func (s *ConfigurationService) SetSortOptionActive(ctx context.Context, id string, active bool, actor *models.JWTClaims) (*models.AppConfig, error) {
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		opt, ok := cfg.SortOption(id)
		if !ok {
			return false, appErrors.Clone(appErrors.ErrNotFound, "opción de ordenación no encontrada")
		}
		if opt.Active == active {
			return false, nil
		}
		opt.Active = active
		return true, nil
	})
}

// AddUserField adds a custom registration field. The key is derived from the label
// and may not shadow a system field.
func (s *ConfigurationService) AddUserField(ctx context.Context, req dto.UserFieldRequest, actor *models.JWTClaims) (*models.AppConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "campo de registro no válido")
	}
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		base := slugify(req.Label)
		if models.IsSystemFieldKey(base) {
			return false, validationError("la clave %q está reservada para un campo de sistema", base)
		}
		key := uniqueID(base, func(candidate string) bool {
			for _, f := range cfg.UserFields {
				if f.Key == candidate || f.ID == candidate {
					return true
				}
			}
			return false
		})
		cfg.UserFields = append(cfg.UserFields, models.UserFieldConfig{
			ID:          key,
			Key:         key,
			Label:       req.Label,
			Placeholder: req.Placeholder,
			Active:      req.Active == nil || *req.Active,
		})
		return true, nil
	})
}

// UpdateUserField edits a field's label, placeholder and active flag. System fields keep
// their key and system marker.
func (s *ConfigurationService) UpdateUserField(ctx context.Context, id string, req dto.UserFieldRequest, actor *models.JWTClaims) (*models.AppConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "campo de registro no válido")
	}
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		field, ok := cfg.UserField(id)
		if !ok {
			return false, appErrors.Clone(appErrors.ErrNotFound, "campo de registro no encontrado")
		}
		field.Label = req.Label
		field.Placeholder = req.Placeholder
		if req.Active != nil {
			field.Active = *req.Active
		}
		return true, nil
	})
}

// DeleteUserField removes a custom field. System fields cannot be deleted.
func (s *ConfigurationService) DeleteUserField(ctx context.Context, id string, actor *models.JWTClaims) (*models.AppConfig, error) {
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		for i, f := range cfg.UserFields {
			if f.ID != id {
				continue
			}
			if f.IsSystem || models.IsSystemFieldKey(f.Key) {
				return false, validationError("los campos de sistema no se pueden eliminar")
			}
			cfg.UserFields = append(cfg.UserFields[:i], cfg.UserFields[i+1:]...)
			return true, nil
		}
		return false, appErrors.Clone(appErrors.ErrNotFound, "campo de registro no encontrado")
	})
}

// SetUserFieldActive toggles a registration field. Username and password stay active.
func (s *ConfigurationService) SetUserFieldActive(ctx context.Context, id string, active bool, actor *models.JWTClaims) (*models.AppConfig, error) {
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		field, ok := cfg.UserField(id)
		if !ok {
			return false, appErrors.Clone(appErrors.ErrNotFound, "campo de registro no encontrado")
		}
		if field.Active == active {
			return false, nil
		}
		field.Active = active
		return true, nil
	})
}

// SetPendingAccountMessage updates the text shown to accounts awaiting approval.
func (s *ConfigurationService) SetPendingAccountMessage(ctx context.Context, message string, actor *models.JWTClaims) (*models.AppConfig, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, validationError("el mensaje de cuenta pendiente no puede estar vacío")
	}
	return s.mutate(ctx, actor, func(cfg *models.AppConfig) (bool, error) {
		if cfg.PendingAccountMessage == message {
			return false, nil
		}
		cfg.PendingAccountMessage = message
		return true, nil
	})
}

// ActiveSortOptions returns the orderings offered to users, in configured order.
func (s *ConfigurationService) ActiveSortOptions(ctx context.Context) ([]models.SortOptionConfig, error) {
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.SortOptionConfig, 0, len(cfg.SortOptions))
	for _, opt := range cfg.SortOptions {
		if opt.Active {
			out = append(out, opt)
		}
	}
	return out, nil
}

// ActiveUserFields returns the registration fields currently shown on the form.
func (s *ConfigurationService) ActiveUserFields(ctx context.Context) ([]models.UserFieldConfig, error) {
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserFieldConfig, 0, len(cfg.UserFields))
	for _, f := range cfg.UserFields {
		if f.Active {
			out = append(out, f)
		}
	}
	return out, nil
}

// ResolveSortOption finds an active sort option by id. Unknown or inactive ids yield nil.
func (s *ConfigurationService) ResolveSortOption(ctx context.Context, id string) (*models.SortOptionConfig, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	options, err := s.ActiveSortOptions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range options {
		if options[i].ID == id {
			return &options[i], nil
		}
	}
	return nil, nil
}

// PendingAccountMessage returns the configured message, falling back to the default.
func (s *ConfigurationService) PendingAccountMessage(ctx context.Context) string {
	cfg, err := s.GetConfig(ctx)
	if err != nil || cfg.PendingAccountMessage == "" {
		return DefaultPendingAccountMessage
	}
	return cfg.PendingAccountMessage
}

// mutate runs a read-modify-write cycle on the document. Unlike GetConfig it refuses to
// operate on a corrupted document.
func (s *ConfigurationService) mutate(ctx context.Context, actor *models.JWTClaims, apply func(cfg *models.AppConfig) (bool, error)) (*models.AppConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		if errors.Is(err, errCorruptConfig) {
			return nil, appErrors.CloneWrap(appErrors.ErrStorage, err, "la configuración guardada está dañada; guárdala completa de nuevo para repararla")
		}
		return nil, err
	}
	next := current.Clone()
	changed, err := apply(next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}
	normalizeAppConfig(next)
	if err := validateAppConfig(next); err != nil {
		return nil, err
	}
	prev, _ := json.Marshal(current)
	if err := s.persist(ctx, next, actor, prev); err != nil {
		return nil, err
	}
	return next, nil
}

// load reads the stored document, seeding defaults on first run and persisting any
// upgrade the migration applied.
func (s *ConfigurationService) load(ctx context.Context) (*models.AppConfig, error) {
	row, err := s.repo.Get(ctx, models.AppConfigKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			cfg := DefaultAppConfig()
			if err := s.write(ctx, cfg, nil); err != nil {
				s.logger.Warn("failed to persist default configuration", zap.Error(err))
			}
			return cfg, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "no se pudo leer la configuración")
	}

	var stored storedAppConfig
	if err := json.Unmarshal(row.Value, &stored); err != nil {
		return nil, errors.Join(errCorruptConfig, err)
	}
	cfg, upgraded := migrateAppConfig(stored)
	if upgraded {
		if err := s.write(ctx, cfg, nil); err != nil {
			s.logger.Warn("failed to persist upgraded configuration", zap.Error(err))
		} else {
			s.logger.Info("configuration document upgraded")
		}
	}
	return cfg, nil
}

func (s *ConfigurationService) persist(ctx context.Context, cfg *models.AppConfig, actor *models.JWTClaims, prev []byte) error {
	if err := s.write(ctx, cfg, userIDPtr(actor)); err != nil {
		return appErrors.CloneWrap(appErrors.ErrStorage, err, "")
	}
	s.emitAudit(ctx, actor, prev, cfg)
	return nil
}

func (s *ConfigurationService) write(ctx context.Context, cfg *models.AppConfig, updatedBy *string) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, &models.Configuration{Key: models.AppConfigKey, Value: payload, UpdatedBy: updatedBy}); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, cacheKeyAppConfig)
	return nil
}

func (s *ConfigurationService) emitAudit(ctx context.Context, actor *models.JWTClaims, prev []byte, next *models.AppConfig) {
	if s.audit == nil {
		return
	}
	newBytes, _ := json.Marshal(next)
	key := models.AppConfigKey
	log := &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionConfigUpdate,
		Resource:   models.AuditResourceConfig,
		ResourceID: &key,
		OldValues:  prev,
		NewValues:  newBytes,
		IPAddress:  "system",
		UserAgent:  "configuration-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record configuration audit", zap.Error(err))
	}
}

// migrateAppConfig fills sections missing from older documents and folds the legacy
// flat customFields list into registration fields.
func migrateAppConfig(stored storedAppConfig) (*models.AppConfig, bool) {
	cfg := &models.AppConfig{}
	upgraded := false

	if stored.Categories != nil {
		cfg.Categories = append([]string{}, (*stored.Categories)...)
	} else {
		cfg.Categories = defaultCategories()
		upgraded = true
	}

	if stored.SortOptions != nil {
		cfg.SortOptions = append([]models.SortOptionConfig{}, (*stored.SortOptions)...)
	} else {
		cfg.SortOptions = defaultSortOptions()
		upgraded = true
	}

	if stored.UserFields != nil {
		cfg.UserFields = append([]models.UserFieldConfig{}, (*stored.UserFields)...)
	} else {
		cfg.UserFields = defaultSystemFields()
		upgraded = true
	}

	taken := func(id string) bool {
		for _, f := range cfg.UserFields {
			if f.ID == id || f.Key == id {
				return true
			}
		}
		return false
	}
	for _, name := range stored.CustomFields {
		name = strings.TrimSpace(name)
		if name == "" || hasFieldLabel(cfg.UserFields, name) {
			continue
		}
		cfg.UserFields = append(cfg.UserFields, models.UserFieldConfig{
			ID:     uniqueID(slugify(name), taken),
			Key:    name,
			Label:  name,
			Active: true,
		})
		upgraded = true
	}
	if len(stored.CustomFields) > 0 {
		upgraded = true
	}

	for _, sys := range defaultSystemFields() {
		found := false
		for i := range cfg.UserFields {
			if cfg.UserFields[i].Key == sys.Key {
				found = true
				if !cfg.UserFields[i].IsSystem {
					cfg.UserFields[i].IsSystem = true
					upgraded = true
				}
				break
			}
		}
		if !found {
			cfg.UserFields = append(cfg.UserFields, sys)
			upgraded = true
		}
	}

	if stored.PendingAccountMessage != nil && strings.TrimSpace(*stored.PendingAccountMessage) != "" {
		cfg.PendingAccountMessage = *stored.PendingAccountMessage
	} else {
		cfg.PendingAccountMessage = DefaultPendingAccountMessage
		upgraded = true
	}

	return cfg, upgraded
}

func hasFieldLabel(fields []models.UserFieldConfig, label string) bool {
	for _, f := range fields {
		if f.Label == label {
			return true
		}
	}
	return false
}

func indexOf(items []string, value string) int {
	for i, item := range items {
		if item == value {
			return i
		}
	}
	return -1
}

func userIDPtr(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}
