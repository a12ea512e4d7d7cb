package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-portal-api/internal/service"
	"github.com/noah-isme/incident-portal-api/pkg/response"
)

type attachmentOpener interface {
	Open(ctx context.Context, token string) (*service.Download, error)
}

// AttachmentHandler serves stored incident media behind signed links.
type AttachmentHandler struct {
	attachments attachmentOpener
}

// NewAttachmentHandler builds a new handler.
func NewAttachmentHandler(attachments attachmentOpener) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Download godoc
// @Summary Download an attachment
// @Description The token comes from the url of an attachment and expires
// @Tags Attachments
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attachments/{token} [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	file, err := h.attachments.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.Name))
	c.Data(http.StatusOK, file.MimeType, file.Data)
}
