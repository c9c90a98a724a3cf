package clients

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"hyodream/api/models"
)

// SentimentClient scores review texts as positive or negative.
type SentimentClient struct {
	http httpClient
	cb   *gobreaker.CircuitBreaker[*models.Sentiment]
}

func NewSentimentClient(endpoint string, timeout time.Duration) *SentimentClient {
	return &SentimentClient{
		http: newHTTPClient(endpoint, timeout),
		cb:   newBreaker[*models.Sentiment]("sentiment"),
	}
}

func (c *SentimentClient) Analyze(ctx context.Context, texts []string) (*models.Sentiment, error) {
	return execute(c.cb, func() (*models.Sentiment, error) {
		var res models.Sentiment
		if err := c.http.post(ctx, "/analyze", map[string][]string{"reviews": texts}, &res); err != nil {
			return nil, fmt.Errorf("analyze %d reviews: %w", len(texts), err)
		}
		return &res, nil
	})
}
