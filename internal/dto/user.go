package dto

// RegisterRequest is a registration form submission. Fields carries the values of
// admin-defined fields keyed by field key.
type RegisterRequest struct {
	Username      string            `json:"username"`
	Password      string            `json:"password"`
	Email         string            `json:"email" validate:"omitempty,email"`
	FullName      string            `json:"full_name"`
	HouseNumber   string            `json:"house_number"`
	ReceiveEmails *bool             `json:"receive_emails"`
	Fields        map[string]string `json:"fields"`
}

// CreateUserRequest is the admin variant of registration; the account starts active.
type CreateUserRequest struct {
	RegisterRequest
	Role string `json:"role" validate:"omitempty,oneof=admin supervisor user"`
}

// UpdatePreferencesRequest merges the provided fields into the user. CustomFields are
// keyed by field label; an empty value removes the entry.
type UpdatePreferencesRequest struct {
	ReceiveEmails *bool             `json:"receive_emails"`
	FullName      *string           `json:"full_name"`
	HouseNumber   *string           `json:"house_number"`
	Email         *string           `json:"email" validate:"omitempty,email"`
	CustomFields  map[string]string `json:"custom_fields"`
}

// ApprovalRequest accepts or rejects a pending account.
type ApprovalRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// ApprovalResponse reports whether the decision was applied.
type ApprovalResponse struct {
	Applied bool `json:"applied"`
}

// LogoutRequest revokes a refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}
