package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/incident-portal-api/internal/models"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

func validationError(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf(format, args...))
}

// normalizeAppConfig trims user-entered text in place.
func normalizeAppConfig(cfg *models.AppConfig) {
	for i := range cfg.Categories {
		cfg.Categories[i] = strings.TrimSpace(cfg.Categories[i])
	}
	for i := range cfg.SortOptions {
		opt := &cfg.SortOptions[i]
		opt.ID = strings.TrimSpace(opt.ID)
		opt.Label = strings.TrimSpace(opt.Label)
		opt.Direction = models.SortDirection(strings.ToLower(strings.TrimSpace(string(opt.Direction))))
	}
	for i := range cfg.UserFields {
		f := &cfg.UserFields[i]
		f.ID = strings.TrimSpace(f.ID)
		f.Key = strings.TrimSpace(f.Key)
		f.Label = strings.TrimSpace(f.Label)
		f.Placeholder = strings.TrimSpace(f.Placeholder)
		f.IsSystem = models.IsSystemFieldKey(f.Key)
	}
	cfg.PendingAccountMessage = strings.TrimSpace(cfg.PendingAccountMessage)
}

// checkCategoryName rejects names the incident list reads as a filter keyword.
// A category called "all" could never be selected on its own.
func checkCategoryName(name string) error {
	if name == CategoryFilterAll {
		return validationError("%q está reservado para el filtro de categorías", name)
	}
	return nil
}

// validateAppConfig enforces the settings editor rules before a document is persisted.
func validateAppConfig(cfg *models.AppConfig) error {
	seenCategories := make(map[string]struct{}, len(cfg.Categories))
	for _, name := range cfg.Categories {
		if name == "" {
			return validationError("el nombre de la categoría no puede estar vacío")
		}
		if err := checkCategoryName(name); err != nil {
			return err
		}
		if _, dup := seenCategories[name]; dup {
			return validationError("la categoría %q está duplicada", name)
		}
		seenCategories[name] = struct{}{}
	}

	seenSorts := make(map[string]struct{}, len(cfg.SortOptions))
	for _, opt := range cfg.SortOptions {
		if err := validateSortOption(opt); err != nil {
			return err
		}
		if _, dup := seenSorts[opt.ID]; dup {
			return validationError("el identificador de ordenación %q está duplicado", opt.ID)
		}
		seenSorts[opt.ID] = struct{}{}
	}

	seenIDs := make(map[string]struct{}, len(cfg.UserFields))
	seenKeys := make(map[string]struct{}, len(cfg.UserFields))
	seenLabels := make(map[string]struct{}, len(cfg.UserFields))
	for _, f := range cfg.UserFields {
		if f.ID == "" || f.Key == "" {
			return validationError("cada campo de registro necesita identificador y clave")
		}
		if f.Label == "" {
			return validationError("la etiqueta del campo %q no puede estar vacía", f.Key)
		}
		if _, dup := seenIDs[f.ID]; dup {
			return validationError("el identificador de campo %q está duplicado", f.ID)
		}
		if _, dup := seenKeys[f.Key]; dup {
			return validationError("la clave de campo %q está duplicada", f.Key)
		}
		if !f.IsSystem {
			if _, dup := seenLabels[f.Label]; dup {
				return validationError("ya existe un campo con la etiqueta %q", f.Label)
			}
			seenLabels[f.Label] = struct{}{}
		}
		if (f.Key == models.FieldUsername || f.Key == models.FieldPassword) && !f.Active {
			return validationError("el campo %q no puede desactivarse", f.Label)
		}
		seenIDs[f.ID] = struct{}{}
		seenKeys[f.Key] = struct{}{}
	}
	for _, key := range models.SystemFieldKeys {
		if _, ok := seenKeys[key]; !ok {
			return validationError("falta el campo de sistema %q", key)
		}
	}

	if cfg.PendingAccountMessage == "" {
		return validationError("el mensaje de cuenta pendiente no puede estar vacío")
	}
	return nil
}

func validateSortOption(opt models.SortOptionConfig) error {
	if opt.ID == "" {
		return validationError("la opción de ordenación necesita un identificador")
	}
	if opt.Label == "" {
		return validationError("la etiqueta de la opción de ordenación no puede estar vacía")
	}
	if !models.IsSortField(opt.Field) {
		return validationError("campo de ordenación no reconocido: %q", opt.Field)
	}
	if !opt.Direction.IsValid() {
		return validationError("la dirección debe ser asc o desc")
	}
	return nil
}
