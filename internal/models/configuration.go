package models

import "time"

// AppConfigKey is the configurations row holding the portal settings document.
const AppConfigKey = "app_config"

// Configuration represents a persisted configuration document.
type Configuration struct {
	Key       string    `db:"key" json:"key"`
	Value     []byte    `db:"value" json:"value"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// IsValid reports whether the direction is recognised.
func (d SortDirection) IsValid() bool {
	return d == SortAsc || d == SortDesc
}

// Sortable incident fields.
const (
	SortFieldCreatedAt = "created_at"
	SortFieldUpdatedAt = "updated_at"
	SortFieldPriority  = "priority"
	SortFieldStatus    = "status"
	SortFieldTitle     = "title"
	SortFieldCategory  = "category"
	SortFieldUserName  = "user_name"
	SortFieldUserHouse = "user_house"
	SortFieldLocation  = "location"
)

// SortFields lists every field a sort option may reference.
var SortFields = []string{
	SortFieldCreatedAt,
	SortFieldUpdatedAt,
	SortFieldPriority,
	SortFieldStatus,
	SortFieldTitle,
	SortFieldCategory,
	SortFieldUserName,
	SortFieldUserHouse,
	SortFieldLocation,
}

// IsSortField reports whether field may back a sort option.
func IsSortField(field string) bool {
	for _, f := range SortFields {
		if f == field {
			return true
		}
	}
	return false
}

// SortOptionConfig is an admin-defined ordering offered on the incident list.
type SortOptionConfig struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
	Active    bool          `json:"active"`
}

// System registration field keys.
const (
	FieldUsername    = "username"
	FieldPassword    = "password"
	FieldEmail       = "email"
	FieldFullName    = "full_name"
	FieldHouseNumber = "house_number"
	FieldRole        = "role"
)

// SystemFieldKeys lists the fields every registration form carries.
var SystemFieldKeys = []string{FieldUsername, FieldPassword, FieldEmail, FieldFullName, FieldHouseNumber, FieldRole}

// IsSystemFieldKey reports whether key names a system field.
func IsSystemFieldKey(key string) bool {
	for _, k := range SystemFieldKeys {
		if k == key {
			return true
		}
	}
	return false
}

// UserFieldConfig describes one registration form field. Values of non-system
// fields are stored on the user under the field label.
type UserFieldConfig struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
	Active      bool   `json:"active"`
	IsSystem    bool   `json:"isSystem"`
}

// AppConfig is the portal-wide settings document.
type AppConfig struct {
	Categories            []string           `json:"categories"`
	SortOptions           []SortOptionConfig `json:"sortOptions"`
	UserFields            []UserFieldConfig  `json:"userFields"`
	PendingAccountMessage string             `json:"pendingAccountMessage"`
}

// HasCategory reports an exact, case-sensitive match.
func (c *AppConfig) HasCategory(name string) bool {
	for _, existing := range c.Categories {
		if existing == name {
			return true
		}
	}
	return false
}

// SortOption finds a sort option by id.
func (c *AppConfig) SortOption(id string) (*SortOptionConfig, bool) {
	for i := range c.SortOptions {
		if c.SortOptions[i].ID == id {
			return &c.SortOptions[i], true
		}
	}
	return nil, false
}

// UserField finds a registration field by id.
func (c *AppConfig) UserField(id string) (*UserFieldConfig, bool) {
	for i := range c.UserFields {
		if c.UserFields[i].ID == id {
			return &c.UserFields[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers can mutate safely.
func (c *AppConfig) Clone() *AppConfig {
	if c == nil {
		return nil
	}
	out := &AppConfig{PendingAccountMessage: c.PendingAccountMessage}
	out.Categories = append([]string{}, c.Categories...)
	out.SortOptions = append([]SortOptionConfig{}, c.SortOptions...)
	out.UserFields = append([]UserFieldConfig{}, c.UserFields...)
	return out
}

// ActiveOnly returns a copy without the inactive sort options and registration fields.
func (c *AppConfig) ActiveOnly() *AppConfig {
	if c == nil {
		return nil
	}
	out := &AppConfig{
		PendingAccountMessage: c.PendingAccountMessage,
		Categories:            append([]string{}, c.Categories...),
		SortOptions:           []SortOptionConfig{},
		UserFields:            []UserFieldConfig{},
	}
	for _, opt := range c.SortOptions {
		if opt.Active {
			out.SortOptions = append(out.SortOptions, opt)
		}
	}
	for _, field := range c.UserFields {
		if field.Active {
			out.UserFields = append(out.UserFields, field)
		}
	}
	return out
}
