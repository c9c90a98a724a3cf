package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hyodream/api/logging"
	"hyodream/api/middleware"
	"hyodream/api/models"
	"hyodream/api/recommend"
	"hyodream/api/store"
	"hyodream/api/utils"
)

type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListReviews(ctx context.Context, productID int64, limit, offset int) ([]models.Review, error)
}

type EnrichmentReader interface {
	GetState(ctx context.Context, productID int64) (*models.EnrichmentState, error)
}

// Enricher starts a background refresh when the product needs one and
// returns the status to report with this read.
type Enricher interface {
	Touch(ctx context.Context, productID int64, state *models.EnrichmentState) models.AnalysisStatus
}

type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) *models.Recommendations
	Related(ctx context.Context, productID int64) ([]models.Product, error)
	Browse(ctx context.Context, req recommend.BrowseRequest) ([]models.Product, error)
}

type ProductHandlers struct {
	products    ProductReader
	enrichment  EnrichmentReader
	enricher    Enricher
	recommender Recommender
}

func NewProductHandlers(products ProductReader, enrichment EnrichmentReader, enricher Enricher, recommender Recommender) *ProductHandlers {
	return &ProductHandlers{
		products:    products,
		enrichment:  enrichment,
		enricher:    enricher,
		recommender: recommender,
	}
}

// GetProduct returns the product with whatever detail data is stored now.
// The read never waits on enrichment.
func (h *ProductHandlers) GetProduct(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}
	ctx := c.Request.Context()

	product, err := h.products.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		logging.Error().Err(err).Int64("product_id", id).Msg("failed to get product")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get product"})
		return
	}

	state, err := h.enrichment.GetState(ctx, id)
	if err != nil {
		logging.Warn().Err(err).Int64("product_id", id).Msg("failed to read enrichment state")
		c.JSON(http.StatusOK, models.NewProductView(*product, nil))
		return
	}

	view := models.NewProductView(*product, state)
	view.AnalysisStatus = h.enricher.Touch(ctx, id, state)
	c.JSON(http.StatusOK, view)
}

func (h *ProductHandlers) ListReviews(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}
	limit := utils.BoundedInt(c.Query("limit"), 20, 100)
	offset := 0
	if p := utils.BoundedInt(c.Query("page"), 1, 1<<20); p > 1 {
		offset = (p - 1) * limit
	}

	reviews, err := h.products.ListReviews(c.Request.Context(), id, limit, offset)
	if err != nil {
		logging.Error().Err(err).Int64("product_id", id).Msg("failed to list reviews")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reviews"})
		return
	}
	c.JSON(http.StatusOK, reviews)
}

// Recommend builds the sectioned recommendations for the resolved actor.
// Section failures are absorbed by the aggregator, so this always answers 200.
func (h *ProductHandlers) Recommend(c *gin.Context) {
	userID, authed := middleware.UserID(c)
	recs := h.recommender.Recommend(c.Request.Context(), recommend.Request{
		ActorID:       middleware.ActorID(c),
		UserID:        userID,
		Authenticated: authed,
	})
	c.JSON(http.StatusOK, recs)
}

// ListProducts pages through the catalog for the resolved actor. The first
// page leads with products matching the actor's top interest.
func (h *ProductHandlers) ListProducts(c *gin.Context) {
	userID, authed := middleware.UserID(c)
	products, err := h.recommender.Browse(c.Request.Context(), recommend.BrowseRequest{
		Request: recommend.Request{
			ActorID:       middleware.ActorID(c),
			UserID:        userID,
			Authenticated: authed,
		},
		Sort:  c.DefaultQuery("sort", store.SortLatest),
		Page:  utils.BoundedInt(c.Query("page"), 1, 1<<20),
		Limit: utils.BoundedInt(c.Query("limit"), 10, 100),
	})
	if err != nil {
		logging.Error().Err(err).Msg("failed to list products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products"})
		return
	}
	c.JSON(http.StatusOK, nonNilProducts(products))
}

func (h *ProductHandlers) Related(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}
	ctx := c.Request.Context()

	if _, err := h.products.GetProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		logging.Error().Err(err).Int64("product_id", id).Msg("failed to get product")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get related products"})
		return
	}

	related, err := h.recommender.Related(ctx, id)
	if err != nil {
		logging.Error().Err(err).Int64("product_id", id).Msg("failed to get related products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get related products"})
		return
	}
	c.JSON(http.StatusOK, nonNilProducts(related))
}

func nonNilProducts(ps []models.Product) []models.Product {
	if ps == nil {
		return []models.Product{}
	}
	return ps
}
