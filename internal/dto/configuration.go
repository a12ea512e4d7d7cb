package dto

import "github.com/noah-isme/incident-portal-api/internal/models"

// SaveAppConfigRequest replaces the whole settings document.
type SaveAppConfigRequest struct {
	Categories            []string                  `json:"categories" validate:"required"`
	SortOptions           []models.SortOptionConfig `json:"sortOptions" validate:"required"`
	UserFields            []models.UserFieldConfig  `json:"userFields" validate:"required"`
	PendingAccountMessage string                    `json:"pendingAccountMessage"`
}

// ToModel converts the request into a settings document.
func (r SaveAppConfigRequest) ToModel() *models.AppConfig {
	return &models.AppConfig{
		Categories:            r.Categories,
		SortOptions:           r.SortOptions,
		UserFields:            r.UserFields,
		PendingAccountMessage: r.PendingAccountMessage,
	}
}

// CategoryRequest names a category.
type CategoryRequest struct {
	Name string `json:"name" validate:"required"`
}

// MoveCategoryRequest shifts a category by Delta positions (negative moves up).
type MoveCategoryRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// SortOptionRequest creates or updates a sort option. ID is optional on create.
type SortOptionRequest struct {
	ID        string `json:"id"`
	Label     string `json:"label" validate:"required"`
	Field     string `json:"field" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=asc desc"`
	Active    *bool  `json:"active"`
}

// UserFieldRequest creates or updates a registration field.
type UserFieldRequest struct {
	Label       string `json:"label" validate:"required"`
	Placeholder string `json:"placeholder"`
	Active      *bool  `json:"active"`
}

// ToggleActiveRequest flips the active flag of a sort option or field.
type ToggleActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// PendingMessageRequest sets the message shown to accounts awaiting approval.
type PendingMessageRequest struct {
	Message string `json:"message" validate:"required"`
}

// AddCategoryResponse reports whether the category was appended.
type AddCategoryResponse struct {
	Added  bool              `json:"added"`
	Config *models.AppConfig `json:"config"`
}
