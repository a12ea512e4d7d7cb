package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/models"
	"github.com/noah-isme/incident-portal-api/internal/repository"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

type userUniquenessChecker interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
}

type appConfigReader interface {
	GetConfig(ctx context.Context) (*models.AppConfig, error)
}

// buildUser turns a form submission into an unsaved user. Role and status are left
// to the caller.
func buildUser(ctx context.Context, lookup userUniquenessChecker, configs appConfigReader, req dto.RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	var missing []string
	if username == "" {
		missing = append(missing, models.FieldUsername)
	}
	if req.Password == "" {
		missing = append(missing, models.FieldPassword)
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrMissingField, "faltan campos obligatorios: "+strings.Join(missing, ", "))
	}

	taken, err := lookup.UsernameExists(ctx, username)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}
	if taken {
		return nil, appErrors.ErrDuplicateUsername
	}
	if email != "" {
		taken, err = lookup.EmailExists(ctx, email, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if taken {
			return nil, appErrors.ErrDuplicateEmail
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	custom := models.CustomFields{}
	if len(req.Fields) > 0 {
		cfg, err := configs.GetConfig(ctx)
		if err != nil {
			return nil, err
		}
		custom = routeCustomFields(cfg.UserFields, req.Fields)
	}

	receive := email != ""
	if req.ReceiveEmails != nil {
		receive = *req.ReceiveEmails
	}

	return &models.User{
		Username:      username,
		Email:         email,
		PasswordHash:  string(hash),
		FullName:      strings.TrimSpace(req.FullName),
		HouseNumber:   strings.TrimSpace(req.HouseNumber),
		ReceiveEmails: receive,
		CustomFields:  custom,
	}, nil
}

// routeCustomFields keeps values submitted for active, non-system fields and stores them
// under the field label. Inactive and unknown keys are dropped.
func routeCustomFields(fields []models.UserFieldConfig, values map[string]string) models.CustomFields {
	out := models.CustomFields{}
	for _, f := range fields {
		if !f.Active || f.IsSystem || models.IsSystemFieldKey(f.Key) {
			continue
		}
		value, ok := values[f.Key]
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		out[f.Label] = value
	}
	return out
}

// mapUserWriteError converts repository unique violations into duplicate errors.
func mapUserWriteError(err error, message string) error {
	switch {
	case errors.Is(err, repository.ErrUsernameTaken):
		return appErrors.ErrDuplicateUsername
	case errors.Is(err, repository.ErrEmailTaken):
		return appErrors.ErrDuplicateEmail
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
