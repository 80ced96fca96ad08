package handlers

import (
	"context"
	"errors"
	"net/http"

	"reward_engine/internal/domain"
	"reward_engine/internal/http/middleware"
	"reward_engine/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RewardAPI is the engine surface the handlers call. *service.RewardService implements it.
type RewardAPI interface {
	RecordView(ctx context.Context, userID uuid.UUID, adID *uuid.UUID) (*domain.ViewResult, error)
	GetQuota(ctx context.Context, userID uuid.UUID) (*domain.DailyQuota, error)
	OpenBox(ctx context.Context, userID, boxID uuid.UUID) (*domain.OpenResult, error)
	ListBoxes(ctx context.Context, userID uuid.UUID) ([]*domain.TreasureBox, error)
	ResetNow(ctx context.Context, userID uuid.UUID) (*domain.DailyQuota, error)
}

type Handler struct {
	Rewards RewardAPI
}

func NewHandler(rewards RewardAPI) *Handler {
	return &Handler{Rewards: rewards}
}

// getUserID returns the caller id stored by middleware.UserIdentity.
func getUserID(c *gin.Context) (uuid.UUID, bool) {
	return middleware.UserIDFrom(c)
}

// statusClientClosedRequest is the nginx convention for a caller that hung up.
const statusClientClosedRequest = 499

// respondError maps engine errors to status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrQuotaExhausted):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrBoxNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "treasure box not found"})
	case errors.Is(err, domain.ErrBoxAlreadyOpened):
		c.JSON(http.StatusConflict, gin.H{"error": "treasure box already opened"})
	case errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, domain.ErrTransactionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent update, please retry"})
	case errors.Is(err, domain.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	case errors.Is(err, context.Canceled):
		logger.Debug("request canceled by client", "path", c.FullPath())
		c.AbortWithStatus(statusClientClosedRequest)
	default:
		logger.Error("unhandled request error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
