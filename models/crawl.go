package models

import (
	"bytes"
	"strconv"
	"strings"
)

// CrawlResult is the crawler's response body for POST /crawl.
type CrawlResult struct {
	Product     *CrawledProduct `json:"product"`
	ReviewCount int             `json:"review_count"`
	Reviews     []CrawledReview `json:"reviews"`
	Error       string          `json:"error,omitempty"`
}

type CrawledProduct struct {
	ProductNo     FlexString `json:"productNo"`
	Name          string     `json:"name"`
	Price         int        `json:"price"`
	OriginalPrice int        `json:"original_price"`
	DiscountRate  int        `json:"discount_rate"`
	Seller        string     `json:"seller"`
	ReviewCount   int64      `json:"review_count"`
	Rating        float64    `json:"rating"`
	Images        []string   `json:"images,omitempty"`
}

// CrawledReview is one raw review as scraped from the source shop.
type CrawledReview struct {
	ID                   FlexString `json:"id"`
	ReviewContent        string     `json:"reviewContent"`
	ReviewScore          FlexString `json:"reviewScore"`
	ProductOptionContent string     `json:"productOptionContent"`
}

// Score parses ReviewScore, defaulting to 5 when the source sent garbage.
func (r CrawledReview) Score() int {
	s := string(r.ReviewScore)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 5
}

// Texts returns the non-blank review bodies in crawl order.
func (c *CrawlResult) Texts() []string {
	texts := make([]string, 0, len(c.Reviews))
	for _, r := range c.Reviews {
		if strings.TrimSpace(r.ReviewContent) != "" {
			texts = append(texts, r.ReviewContent)
		}
	}
	return texts
}

// Sentiment is the sentiment service's response for POST /analyze.
type Sentiment struct {
	TotalReviews    int     `json:"total_reviews"`
	PositivePercent float64 `json:"positive_percent"`
	NegativePercent float64 `json:"negative_percent"`
	PositiveCount   int     `json:"positive_count"`
	NegativeCount   int     `json:"negative_count"`
}

// FlexString decodes a JSON string or number into its literal text.
// Upstream shops are inconsistent about id and score types.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}
