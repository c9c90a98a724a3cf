package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hyodream/api/interest"
	"hyodream/api/logging"
	"hyodream/api/middleware"
	"hyodream/api/models"
	"hyodream/api/store"
	"hyodream/api/utils"
)

type EventRecorder interface {
	Record(ctx context.Context, actorID string, productID int64, category string, kind models.EventKind) error
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

type ScoreReader interface {
	Scores(ctx context.Context, actorID string) ([]models.CategoryScore, error)
}

type EventHandlers struct {
	recorder EventRecorder
	products ProductLookup
	scores   ScoreReader
}

func NewEventHandlers(recorder EventRecorder, products ProductLookup, scores ScoreReader) *EventHandlers {
	return &EventHandlers{recorder: recorder, products: products, scores: scores}
}

// RecordView ingests one behavior event for the resolved actor. The event is
// tagged with the product's most specific category. Scoring happens
// asynchronously, so the response is 202 even when the append fails.
func (h *EventHandlers) RecordView(c *gin.Context) {
	productID, ok := utils.ParseID(c.Query("productId"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId query parameter must be a positive integer"})
		return
	}
	actorID := middleware.ActorID(c)
	if actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Login or an X-Session-Id header is required"})
		return
	}

	kind := models.EventClick
	if t := c.Query("type"); t != "" {
		kind, _ = models.ParseEventKind(t)
	}

	ctx := c.Request.Context()
	category := ""
	product, err := h.products.GetProduct(ctx, productID)
	switch {
	case err == nil:
		category = product.MostSpecificCategory()
	case errors.Is(err, store.ErrNotFound):
	default:
		logging.Warn().Err(err).Int64("product_id", productID).Msg("category lookup failed")
	}

	if err := h.recorder.Record(ctx, actorID, productID, category, kind); err != nil {
		if errors.Is(err, interest.ErrNoActor) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Login or an X-Session-Id header is required"})
			return
		}
		logging.Warn().Err(err).Str("actor_id", actorID).Int64("product_id", productID).Msg("failed to record interest event")
	}
	c.Status(http.StatusAccepted)
}

// MyInterests returns the caller's live category scores, highest first.
func (h *EventHandlers) MyInterests(c *gin.Context) {
	actorID := middleware.ActorID(c)
	if actorID == "" {
		c.JSON(http.StatusOK, []models.CategoryScore{})
		return
	}
	scores, err := h.scores.Scores(c.Request.Context(), actorID)
	if err != nil {
		logging.Error().Err(err).Str("actor_id", actorID).Msg("failed to read interest scores")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read interests"})
		return
	}
	if scores == nil {
		scores = []models.CategoryScore{}
	}
	c.JSON(http.StatusOK, scores)
}
