// Package catalog holds background maintenance of catalog data.
package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"hyodream/api/logging"
)

const (
	DefaultRefreshInterval = 24 * time.Hour
	salesWindow            = 30 * 24 * time.Hour
)

type SalesStore interface {
	RefreshRecentSales(ctx context.Context, since time.Time) (int64, error)
}

// SalesRefresher recomputes products.recent_sales on a fixed interval,
// once immediately at start.
type SalesRefresher struct {
	store    SalesStore
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewSalesRefresher(store SalesStore, interval time.Duration) *SalesRefresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &SalesRefresher{
		store:    store,
		interval: interval,
		now:      time.Now,
		log:      logging.With("sales-refresher"),
	}
}

// Serve implements suture.Service.
func (r *SalesRefresher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RefreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}

func (r *SalesRefresher) String() string { return "sales-refresher" }

// RefreshOnce runs one refresh. Errors are logged; the next tick retries.
func (r *SalesRefresher) RefreshOnce(ctx context.Context) {
	since := r.now().Add(-salesWindow)
	n, err := r.store.RefreshRecentSales(ctx, since)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error().Err(err).Msg("recent sales refresh failed")
		}
		return
	}
	r.log.Info().Int64("updated", n).Time("since", since).Msg("recent sales refreshed")
}
