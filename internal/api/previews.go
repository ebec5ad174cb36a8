package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"legaladvisor/internal/upload"
)

// servePreview streams an attached file. The signed token is the only credential.
func (h *Handler) servePreview(c *gin.Context) {
	claims, err := h.signer.Parse(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	rc, err := h.previews.Open(c.Request.Context(), claims.Key)
	if err != nil {
		if errors.Is(err, upload.ErrPreviewNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
			return
		}
		h.log.Error("open preview", zap.String("key", claims.Key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "open preview failed"})
		return
	}
	defer rc.Close()

	contentType, disposition := previewHeaders(claims.MimeType)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": claims.Name}))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "private, no-store")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.log.Debug("stream preview", zap.String("key", claims.Key), zap.Error(err))
	}
}

// previewHeaders picks the served type and disposition. Only types a browser
// renders without running script are shown inline.
func previewHeaders(mimeType string) (string, string) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "application/octet-stream", "attachment"
	}
	switch {
	case mediaType == "application/pdf":
		return mediaType, "inline"
	case mediaType == "text/plain":
		return "text/plain; charset=utf-8", "inline"
	case strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml":
		return mediaType, "inline"
	default:
		return "application/octet-stream", "attachment"
	}
}
