package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hyodream/api/logging"
	"hyodream/api/models"
	"hyodream/api/utils"
)

const (
	statsTimeout = 10 * time.Second
	defaultRange = 7 * 24 * time.Hour
)

type AnalyticsReader interface {
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, kindFilter string) ([]models.CountByTime, error)
	GetUniqueActorsOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.CountByTime, error)
	GetTopCategories(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopCategoryResult, error)
}

// AnalyticsHandlers serves aggregate stats from the ClickHouse interest archive.
type AnalyticsHandlers struct {
	analytics AnalyticsReader
}

func NewAnalyticsHandlers(analytics AnalyticsReader) *AnalyticsHandlers {
	return &AnalyticsHandlers{analytics: analytics}
}

func (h *AnalyticsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be one of Minute, Hour, Day, Week, Month, Quarter, Year"})
		return
	}
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	kindFilter := ""
	if k := c.Query("eventKind"); k != "" {
		kind, known := models.ParseEventKind(k)
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown eventKind"})
			return
		}
		kindFilter = string(kind)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
	defer cancel()

	results, err := h.analytics.GetEventCountsOverTime(ctx, interval, start, end, kindFilter)
	if err != nil {
		logging.Error().Err(err).Msg("failed to get event counts over time")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}
	c.JSON(http.StatusOK, nonNilSlice(results))
}

func (h *AnalyticsHandlers) GetUniqueActorsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be one of Minute, Hour, Day, Week, Month, Quarter, Year"})
		return
	}
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
	defer cancel()

	results, err := h.analytics.GetUniqueActorsOverTime(ctx, interval, start, end)
	if err != nil {
		logging.Error().Err(err).Msg("failed to get unique actors over time")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique actor statistics"})
		return
	}
	c.JSON(http.StatusOK, nonNilSlice(results))
}

func (h *AnalyticsHandlers) GetTopCategories(c *gin.Context) {
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	if limitParam := c.Query("limit"); limitParam != "" {
		parsedLimit, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsedLimit == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsedLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
	defer cancel()

	results, err := h.analytics.GetTopCategories(ctx, start, end, limit)
	if err != nil {
		logging.Error().Err(err).Msg("failed to get top categories")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top category statistics"})
		return
	}
	c.JSON(http.StatusOK, nonNilSlice(results))
}

// parseRange reads RFC3339 start/end, defaulting to the last 7 days.
// It writes the 400 response itself and returns ok=false on bad input.
func parseRange(c *gin.Context) (start, end time.Time, ok bool) {
	end = time.Now().UTC()
	start = end.Add(-defaultRange)

	if p := c.Query("start"); p != "" {
		t, err := time.Parse(time.RFC3339, p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
		start = t
	}
	if p := c.Query("end"); p != "" {
		t, err := time.Parse(time.RFC3339, p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
		end = t
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'end' must not be before 'start'"})
		return start, end, false
	}
	return start, end, true
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
