package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials; Identifier matches a username or an email.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password"`
	IP         string `json:"-"`
	UserAgent  string `json:"-"`
}

// LoginResponse returns the issued tokens and the session snapshot.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UserInfo is the session snapshot of the authenticated user.
type UserInfo struct {
	ID            string       `json:"id"`
	Username      string       `json:"username"`
	Email         string       `json:"email"`
	FullName      string       `json:"full_name"`
	HouseNumber   string       `json:"house_number"`
	Role          UserRole     `json:"role"`
	Status        UserStatus   `json:"status"`
	ReceiveEmails bool         `json:"receive_emails"`
	CustomFields  CustomFields `json:"custom_fields"`
}

// NewUserInfo builds the session snapshot for a user.
func NewUserInfo(u *User) UserInfo {
	fields := CustomFields{}
	for k, v := range u.CustomFields {
		fields[k] = v
	}
	return UserInfo{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FullName:      u.FullName,
		HouseNumber:   u.HouseNumber,
		Role:          u.Role,
		Status:        u.Status,
		ReceiveEmails: u.ReceiveEmails,
		CustomFields:  fields,
	}
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string     `json:"user_id"`
	Username string     `json:"username"`
	Role     UserRole   `json:"role"`
	Status   UserStatus `json:"status"`
	jwt.RegisteredClaims
}
