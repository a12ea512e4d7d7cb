package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/models"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

func TestAuthHandlerLogoutRequiresRefreshToken(t *testing.T) {
	h := NewAuthHandler(&fakeAuth{})

	c, rec := newTestContext(http.MethodPost, "/auth/logout", []byte(`{}`), &models.JWTClaims{UserID: "u-1"})
	h.Logout(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerLogoutWithoutClaims(t *testing.T) {
	h := NewAuthHandler(&fakeAuth{})

	body, _ := json.Marshal(dto.LogoutRequest{RefreshToken: "rt"})
	c, rec := newTestContext(http.MethodPost, "/auth/logout", body, nil)
	h.Logout(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLoginSurfacesAccountState(t *testing.T) {
	h := NewAuthHandler(&fakeAuth{err: appErrors.ErrAccountRejected})

	body, _ := json.Marshal(models.LoginRequest{Identifier: "lucia", Password: "x"})
	c, rec := newTestContext(http.MethodPost, "/auth/login", body, nil)
	h.Login(c)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, appErrors.ErrAccountRejected.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestAuthHandlerRegisterReturnsPendingUser(t *testing.T) {
	h := NewAuthHandler(&fakeAuth{})

	body, _ := json.Marshal(dto.RegisterRequest{Username: "vecino", Password: "clave"})
	c, rec := newTestContext(http.MethodPost, "/auth/register", body, nil)
	h.Register(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	var info models.UserInfo
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &info))
	assert.Equal(t, models.UserStatusPending, info.Status)
	assert.Equal(t, "vecino", info.Username)
}
