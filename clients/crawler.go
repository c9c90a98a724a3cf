package clients

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"hyodream/api/models"
)

// CrawlerClient scrapes a shop page for product details and reviews.
type CrawlerClient struct {
	http     httpClient
	cb       *gobreaker.CircuitBreaker[*models.CrawlResult]
	maxPages int
}

func NewCrawlerClient(endpoint string, timeout time.Duration, maxPages int) *CrawlerClient {
	if maxPages <= 0 {
		maxPages = 5
	}
	return &CrawlerClient{
		http:     newHTTPClient(endpoint, timeout),
		cb:       newBreaker[*models.CrawlResult]("crawler"),
		maxPages: maxPages,
	}
}

type crawlRequest struct {
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages"`
}

// Crawl returns an error if the crawler reports one or sends no product block.
func (c *CrawlerClient) Crawl(ctx context.Context, url string) (*models.CrawlResult, error) {
	return execute(c.cb, func() (*models.CrawlResult, error) {
		var res models.CrawlResult
		if err := c.http.post(ctx, "/crawl", crawlRequest{URL: url, MaxPages: c.maxPages}, &res); err != nil {
			return nil, fmt.Errorf("crawl %s: %w", url, err)
		}
		if res.Error != "" {
			return nil, fmt.Errorf("crawl %s: %w: %s", url, ErrUpstream, res.Error)
		}
		if res.Product == nil {
			return nil, fmt.Errorf("crawl %s: %w: empty product", url, ErrUpstream)
		}
		return &res, nil
	})
}
