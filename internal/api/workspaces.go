package api

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"legaladvisor/internal/consultation"
	"legaladvisor/internal/models"
	"legaladvisor/internal/upload"
	"legaladvisor/internal/worker"
)

// workspace loads the workspace named in the path for the authorized user.
func (h *Handler) workspace(c *gin.Context) (*consultation.Workspace, bool) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return nil, false
	}
	w, err := h.workspaces.Get(userID, c.Param("wid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		return nil, false
	}
	return w, true
}

func (h *Handler) listWorkspaces(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	list := h.workspaces.List(userID)
	out := make([]consultation.Snapshot, 0, len(list))
	for _, w := range list {
		out = append(out, w.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": out})
}

func (h *Handler) openWorkspace(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Type string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	kind := models.ConsultationType(strings.TrimSpace(req.Type))
	if kind == "" {
		kind = models.ConsultationChat
	}
	w, err := h.workspaces.Open(userID, kind, h.requestLocale(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, w.Snapshot())
}

func (h *Handler) getWorkspace(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, w.Snapshot())
}

func (h *Handler) closeWorkspace(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.workspaces.CloseWorkspace(c.Request.Context(), userID, c.Param("wid")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateDraft(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	w.SetDraft(req.Text)
	c.Status(http.StatusNoContent)
}

func (h *Handler) listMessages(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": w.Messages()})
}

func (h *Handler) listNotifications(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": w.Notifications()})
}

func (h *Handler) listFiles(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"files":     w.Files.Files(),
		"max_files": w.Files.MaxFiles(),
	})
}

// uploadFiles attaches every part of the multipart field "files" as one batch.
func (h *Handler) uploadFiles(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	limit := h.maxFileBytes*int64(w.Files.MaxFiles()) + 1<<20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "files are required"})
		return
	}
	for _, fh := range headers {
		if fh.Size > h.maxFileBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "file": fh.Filename})
			return
		}
	}

	inputs := make([]upload.FileInput, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
			return
		}
		opened = append(opened, f)
		input, err := sniffInput(fh, f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
			return
		}
		inputs = append(inputs, input)
	}

	files, err := w.AddFiles(c.Request.Context(), inputs)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrTooManyFiles):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "max_files": w.Files.MaxFiles()})
		case errors.Is(err, consultation.ErrWorkspaceClosed):
			c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		default:
			h.log.Error("store upload", zap.String("workspace", w.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store file failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"files": files})
}

// sniffInput fills in the MIME type from the part header, or from the first
// 512 bytes when the client sent none.
func sniffInput(fh *multipart.FileHeader, f multipart.File) (upload.FileInput, error) {
	contentType := fh.Header.Get("Content-Type")
	var content io.Reader = f
	if contentType == "" || contentType == "application/octet-stream" {
		buf := make([]byte, 512)
		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return upload.FileInput{}, err
		}
		contentType = http.DetectContentType(buf[:n])
		content = io.MultiReader(bytes.NewReader(buf[:n]), f)
	}
	return upload.FileInput{
		Name:     filepath.Base(fh.Filename),
		MimeType: contentType,
		Size:     fh.Size,
		Content:  content,
	}, nil
}

func (h *Handler) removeFile(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	// removing an unknown id is a no-op
	w.RemoveFile(c.Request.Context(), c.Param("fid"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) analyzeFile(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	res, err := w.AnalyzeFile(c.Request.Context(), c.Param("fid"))
	if err != nil {
		switch {
		case errors.Is(err, consultation.ErrFileNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		case errors.Is(err, consultation.ErrWorkspaceClosed):
			c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

// submit appends the user message and queues the consultation. The reply
// arrives through the event stream.
func (h *Handler) submit(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	var req struct {
		QueryText *string `json:"query_text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	text := w.Draft()
	if req.QueryText != nil {
		text = *req.QueryText
	}
	msg, err := w.Submit(c.Request.Context(), text, w.Files.Files())
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrDispatcherBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry", "message": msg})
		case errors.Is(err, consultation.ErrWorkspaceClosed):
			c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "message": msg})
		}
		return
	}
	if msg == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

func (h *Handler) workspaceFeedback(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	var req struct {
		ConsultationID string `json:"consultation_id"`
		Value          int    `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	// a blank id falls through to RecordFeedback, which reports it
	if strings.TrimSpace(req.ConsultationID) != "" {
		if _, ok := h.ownedConsultation(c, userID, req.ConsultationID); !ok {
			return
		}
	}
	if err := w.RecordFeedback(c.Request.Context(), req.ConsultationID, req.Value); err != nil {
		writeFeedbackError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeFeedbackError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, consultation.ErrInvalidFeedback), errors.Is(err, consultation.ErrMissingConsultationID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "feedback could not be saved"})
	}
}
