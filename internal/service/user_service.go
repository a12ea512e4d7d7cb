package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/models"
	"github.com/noah-isme/incident-portal-api/pkg/config"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
	ListByStatus(ctx context.Context, status models.UserStatus) ([]models.User, error)
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
	Create(ctx context.Context, user *models.User) error
	Activate(ctx context.Context, id string, at time.Time) (bool, error)
	DeletePending(ctx context.Context, id string) (bool, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UserService handles account administration: admin creation, the approval queue and
// profile preferences.
type UserService struct {
	repo       userRepository
	configs    appConfigReader
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	sessionTTL time.Duration
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, configs appConfigReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, sessionTTL time.Duration) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{
		repo:       repo,
		configs:    configs,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		sessionTTL: sessionTTL,
	}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// CreateUser adds an account on behalf of an administrator. It starts active.
func (s *UserService) CreateUser(ctx context.Context, req dto.CreateUserRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "datos de usuario no válidos")
	}

	user, err := buildUser(ctx, s.repo, s.configs, req.RegisterRequest)
	if err != nil {
		return nil, err
	}
	user.Role = models.RoleUser
	if req.Role != "" {
		user.Role = models.UserRole(req.Role)
	}
	user.Status = models.UserStatusActive

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, mapUserWriteError(err, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "username": user.Username, "role": user.Role})
	s.audit(ctx, actor, models.AuditActionUserCreate, user.ID, nil, newPayload, meta)

	return user, nil
}

// ListPending returns accounts awaiting review, oldest first.
func (s *UserService) ListPending(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.ListByStatus(ctx, models.UserStatusPending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// Approve accepts (activates) or rejects (deletes) a pending account. It reports false when
// the id does not name a pending account; nothing changes in that case.
func (s *UserService) Approve(ctx context.Context, id string, accept bool, actor *models.JWTClaims, meta models.LoginRequest) (bool, error) {
	var (
		applied bool
		err     error
		action  string
	)
	if accept {
		applied, err = s.repo.Activate(ctx, id, time.Now().UTC())
		action = models.AuditActionUserApprove
	} else {
		applied, err = s.repo.DeletePending(ctx, id)
		action = models.AuditActionUserReject
	}
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review user")
	}
	if !applied {
		return false, nil
	}

	_ = s.cache.Delete(ctx, sessionCacheKey(id))
	s.metrics.RecordReview(accept)
	s.audit(ctx, actor, action, id, []byte(`{"status":"pending"}`), nil, meta)
	return true, nil
}

// UpdatePreferences merges the provided fields into the user and refreshes the cached
// session snapshot.
func (s *UserService) UpdatePreferences(ctx context.Context, id string, req dto.UpdatePreferencesRequest, actor *models.JWTClaims, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "el correo electrónico no es válido")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldPayload, _ := json.Marshal(preferencesSnapshot(user))

	if req.ReceiveEmails != nil {
		user.ReceiveEmails = *req.ReceiveEmails
	}
	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.HouseNumber != nil {
		user.HouseNumber = strings.TrimSpace(*req.HouseNumber)
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" && !strings.EqualFold(email, user.Email) {
			taken, err := s.repo.EmailExists(ctx, email, user.ID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
			}
			if taken {
				return nil, appErrors.ErrDuplicateEmail
			}
		}
		user.Email = email
	}
	if len(req.CustomFields) > 0 {
		if user.CustomFields == nil {
			user.CustomFields = models.CustomFields{}
		}
		for label, value := range req.CustomFields {
			value = strings.TrimSpace(value)
			if value == "" {
				delete(user.CustomFields, label)
				continue
			}
			user.CustomFields[label] = value
		}
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, mapUserWriteError(err, "failed to update user")
	}

	_ = s.cache.Set(ctx, sessionCacheKey(user.ID), models.NewUserInfo(user), s.sessionTTL)

	newPayload, _ := json.Marshal(preferencesSnapshot(user))
	s.audit(ctx, actor, models.AuditActionUserUpdate, user.ID, oldPayload, newPayload, meta)
	return user, nil
}

// BootstrapAdmin creates the configured administrator when no admin exists yet.
// It reports whether an account was created.
func (s *UserService) BootstrapAdmin(ctx context.Context, cfg config.BootstrapConfig) (bool, error) {
	username := strings.TrimSpace(cfg.AdminUsername)
	if username == "" || cfg.AdminPassword == "" {
		return false, nil
	}
	count, err := s.repo.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count admins")
	}
	if count > 0 {
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	email := strings.TrimSpace(cfg.AdminEmail)
	admin := &models.User{
		Username:      username,
		Email:         email,
		PasswordHash:  string(hash),
		Role:          models.RoleAdmin,
		Status:        models.UserStatusActive,
		FullName:      "Administrador",
		ReceiveEmails: email != "",
		CustomFields:  models.CustomFields{},
	}
	if err := s.repo.Create(ctx, admin); err != nil {
		return false, mapUserWriteError(err, "failed to create bootstrap admin")
	}
	s.logger.Info("bootstrap administrator created", zap.String("username", admin.Username))
	return true, nil
}

func (s *UserService) audit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, oldValues, newValues []byte, meta models.LoginRequest) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     action,
		Resource:   models.AuditResourceUser,
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}

func preferencesSnapshot(u *models.User) map[string]interface{} {
	return map[string]interface{}{
		"email":          u.Email,
		"full_name":      u.FullName,
		"house_number":   u.HouseNumber,
		"receive_emails": u.ReceiveEmails,
		"custom_fields":  u.CustomFields,
	}
}
