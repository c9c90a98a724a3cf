package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"hyodream/api/logging"
	"hyodream/api/middleware"
	"hyodream/api/models"
)

type HealthProfileStore interface {
	GetHealthProfile(ctx context.Context, userID int64) (*models.HealthProfile, error)
	SetHealthProfile(ctx context.Context, userID int64, req models.HealthProfileRequest) (*models.HealthProfile, error)
}

type HealthHandlers struct {
	profiles HealthProfileStore
}

func NewHealthHandlers(profiles HealthProfileStore) *HealthHandlers {
	return &HealthHandlers{profiles: profiles}
}

func (h *HealthHandlers) GetProfile(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	profile, err := h.profiles.GetHealthProfile(c.Request.Context(), userID)
	if err != nil {
		logging.Error().Err(err).Int64("user_id", userID).Msg("failed to load health profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load health profile"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// PutProfile replaces all three tag lists, keeping the order given.
func (h *HealthHandlers) PutProfile(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	var req models.HealthProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	profile, err := h.profiles.SetHealthProfile(c.Request.Context(), userID, req)
	if err != nil {
		logging.Error().Err(err).Int64("user_id", userID).Msg("failed to save health profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save health profile"})
		return
	}
	c.JSON(http.StatusOK, profile)
}
