package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type recordViewRequest struct {
	AdID *string `json:"ad_id"`
}

// GetQuota returns today's quota, creating it on first access.
func (h *Handler) GetQuota(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	q, err := h.Rewards.GetQuota(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quota": q})
}

// RecordView counts a completed video view. The body is optional.
func (h *Handler) RecordView(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req recordViewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	var adID *uuid.UUID
	if req.AdID != nil && *req.AdID != "" {
		id, err := uuid.Parse(*req.AdID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ad_id"})
			return
		}
		adID = &id
	}

	res, err := h.Rewards.RecordView(c.Request.Context(), userID, adID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ResetQuota resets the caller's own quota.
func (h *Handler) ResetQuota(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	q, err := h.Rewards.ResetNow(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quota": q})
}

func (h *Handler) ListBoxes(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	boxes, err := h.Rewards.ListBoxes(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boxes": boxes})
}

func (h *Handler) OpenBox(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	boxID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid box id"})
		return
	}

	res, err := h.Rewards.OpenBox(c.Request.Context(), userID, boxID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
