package clients

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"hyodream/api/models"
)

// RankerClient asks the AI ranker to order a candidate pool for one user.
type RankerClient struct {
	http httpClient
	cb   *gobreaker.CircuitBreaker[[]int64]
}

func NewRankerClient(endpoint string, timeout time.Duration) *RankerClient {
	return &RankerClient{
		http: newHTTPClient(endpoint, timeout),
		cb:   newBreaker[[]int64]("ranker"),
	}
}

// Rank returns product ids in the ranker's preferred order. Ids are not validated.
func (c *RankerClient) Rank(ctx context.Context, req models.RankRequest) ([]int64, error) {
	return execute(c.cb, func() ([]int64, error) {
		var res models.RankResponse
		if err := c.http.post(ctx, "/recommend", req, &res); err != nil {
			return nil, fmt.Errorf("rank %d candidates: %w", len(req.Candidates), err)
		}
		return res.ProductIDs, nil
	})
}
