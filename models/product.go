package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry. Detail data lives in EnrichmentState, keyed by ID.
type Product struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Price          int       `json:"price"`
	ImageURL       string    `json:"imageUrl"`
	ItemURL        string    `json:"itemUrl"`
	Brand          string    `json:"brand"`
	Maker          string    `json:"maker"`
	Category1      string    `json:"category1"`
	Category2      string    `json:"category2"`
	Category3      string    `json:"category3"`
	Category4      string    `json:"category4"`
	HealthBenefits []string  `json:"healthBenefits"`
	Allergens      []string  `json:"allergens"`
	RecentSales    int       `json:"recentSales"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MostSpecificCategory walks category4 down to category1.
func (p Product) MostSpecificCategory() string {
	for _, c := range []string{p.Category4, p.Category3, p.Category2, p.Category1} {
		if c != "" {
			return c
		}
	}
	return ""
}

// AnalysisStatus is the enrichment lifecycle of one product.
type AnalysisStatus string

const (
	StatusNone      AnalysisStatus = "NONE"
	StatusProgress  AnalysisStatus = "PROGRESS"
	StatusCompleted AnalysisStatus = "COMPLETED"
	StatusFailed    AnalysisStatus = "FAILED"
)

// DetailPayload is the crawled and analyzed data for a product.
type DetailPayload struct {
	OriginalPrice       int     `json:"originalPrice"`
	DiscountRate        int     `json:"discountRate"`
	Seller              string  `json:"seller"`
	ReviewCount         int64   `json:"reviewCount"`
	AverageRating       float64 `json:"averageRating"`
	PositiveRatio       float64 `json:"positiveRatio"`
	NegativeRatio       float64 `json:"negativeRatio"`
	AnalyzedReviewCount int     `json:"analyzedReviewCount"`
}

// EnrichmentState is the per-product row guarded by the claim protocol.
type EnrichmentState struct {
	ProductID    int64
	Status       AnalysisStatus
	Detail       DetailPayload
	LastSyncedAt *time.Time
	ClaimedAt    *time.Time
	ClaimToken   *uuid.UUID
}

// NeedsRefresh reports whether a claim on s would succeed at now.
// A nil state is always claimable. A PROGRESS state becomes claimable
// again once its claim is older than jobTimeout.
func (s *EnrichmentState) NeedsRefresh(now time.Time, staleAfter, jobTimeout time.Duration) bool {
	if s == nil {
		return true
	}
	if s.Status == StatusProgress {
		return s.ClaimedAt == nil || s.ClaimedAt.Before(now.Add(-jobTimeout))
	}
	return s.LastSyncedAt == nil || s.LastSyncedAt.Before(now.Add(-staleAfter))
}

// CurrentStatus returns NONE for a missing state.
func (s *EnrichmentState) CurrentStatus() AnalysisStatus {
	if s == nil || s.Status == "" {
		return StatusNone
	}
	return s.Status
}

// ProductView is the product-detail response.
type ProductView struct {
	Product
	DetailPayload
	AnalysisStatus AnalysisStatus `json:"analysisStatus"`
	LastSyncedAt   *time.Time     `json:"lastSyncedAt,omitempty"`
}

// NewProductView merges a product with its (possibly missing) enrichment state.
func NewProductView(p Product, s *EnrichmentState) ProductView {
	v := ProductView{Product: p, AnalysisStatus: s.CurrentStatus()}
	if s != nil {
		v.DetailPayload = s.Detail
		v.LastSyncedAt = s.LastSyncedAt
	}
	return v
}

// Review is a persisted review. Crawled reviews carry ExternalReviewID.
type Review struct {
	ID               int64     `json:"id"`
	ProductID        int64     `json:"productId"`
	ExternalReviewID string    `json:"externalReviewId,omitempty"`
	AuthorName       string    `json:"authorName"`
	Content          string    `json:"content"`
	Score            int       `json:"score"`
	ProductOption    string    `json:"productOption,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
