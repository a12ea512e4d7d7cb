package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-portal-api/internal/middleware"
	"github.com/noah-isme/incident-portal-api/internal/models"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// requestMeta captures the caller's address for audit records.
func requestMeta(c *gin.Context) models.LoginRequest {
	return models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

func invalidPayload(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}
