package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleSupervisor UserRole = "supervisor"
	RoleUser       UserRole = "user"
)

// IsValid reports whether the role is one of the known roles.
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleUser:
		return true
	}
	return false
}

// UserStatus tracks the account approval lifecycle.
type UserStatus string

const (
	UserStatusPending  UserStatus = "pending"
	UserStatusActive   UserStatus = "active"
	UserStatusRejected UserStatus = "rejected"
)

// CustomFields holds registration values for admin-defined fields, keyed by field label.
type CustomFields map[string]string

// Value implements driver.Valuer for JSONB storage.
func (c CustomFields) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB storage.
func (c *CustomFields) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = CustomFields{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("custom fields: unsupported type %T", src)
	}
	out := CustomFields{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("custom fields: %w", err)
		}
	}
	*c = out
	return nil
}

// User represents a portal account stored in the users table.
type User struct {
	ID            string       `db:"id" json:"id"`
	Username      string       `db:"username" json:"username"`
	Email         string       `db:"email" json:"email"`
	PasswordHash  string       `db:"password_hash" json:"-"`
	Role          UserRole     `db:"role" json:"role"`
	Status        UserStatus   `db:"status" json:"status"`
	FullName      string       `db:"full_name" json:"full_name"`
	HouseNumber   string       `db:"house_number" json:"house_number"`
	ReceiveEmails bool         `db:"receive_emails" json:"receive_emails"`
	CustomFields  CustomFields `db:"custom_fields" json:"custom_fields"`
	LastLogin     *time.Time   `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Status    *UserStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
