package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"legaladvisor/internal/models"
)

func (h *Handler) listConsultations(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	list, err := h.consultations.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(list) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"consultations": make([]models.Consultation, 0),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"consultations": list})
}

// ownedConsultation loads the record with the given id. Records of other
// users, and anonymous ones, read as not found.
func (h *Handler) ownedConsultation(c *gin.Context, userID int64, id string) (*models.Consultation, bool) {
	rec, err := h.consultations.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "consultation not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if rec.UserID == nil || *rec.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "consultation not found"})
		return nil, false
	}
	return rec, true
}

func (h *Handler) getConsultation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	rec, ok := h.ownedConsultation(c, userID, c.Param("cid"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) consultationFeedback(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Value int `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rec, ok := h.ownedConsultation(c, userID, c.Param("cid"))
	if !ok {
		return
	}
	if err := h.feedback.Record(c.Request.Context(), rec.ID, req.Value); err != nil {
		writeFeedbackError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
