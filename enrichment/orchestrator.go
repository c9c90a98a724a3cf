// Package enrichment refreshes product detail and review data in the background.
//
// A product read calls Touch. If the product's state needs a refresh, Touch
// claims it with a fresh token and hands the job to the Dispatcher. The job
// runs crawl, persist, sentiment and finalize. Every write is fenced on the
// token, so a job whose claim was taken over by the watchdog cannot clobber
// its successor.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hyodream/api/config"
	"hyodream/api/logging"
	"hyodream/api/metrics"
	"hyodream/api/models"
	"hyodream/api/store"
)

const failWriteTimeout = 10 * time.Second

var errNoSourceURL = errors.New("product has no source url")

type Store interface {
	Claim(ctx context.Context, productID int64, token uuid.UUID, staleAfter, jobTimeout time.Duration) (bool, error)
	SourceURL(ctx context.Context, productID int64) (string, error)
	SaveDetail(ctx context.Context, productID int64, token uuid.UUID, p models.CrawledProduct) error
	SaveReviews(ctx context.Context, productID int64, reviews []models.CrawledReview) (int, error)
	Complete(ctx context.Context, productID int64, token uuid.UUID, sentiment *models.Sentiment) error
	Fail(ctx context.Context, productID int64, token uuid.UUID) error
}

type Crawler interface {
	Crawl(ctx context.Context, url string) (*models.CrawlResult, error)
}

type SentimentAnalyzer interface {
	Analyze(ctx context.Context, texts []string) (*models.Sentiment, error)
}

// Submitter accepts background work without blocking.
type Submitter interface {
	Submit(t Task) bool
}

type Orchestrator struct {
	store     Store
	crawler   Crawler
	sentiment SentimentAnalyzer
	pool      Submitter
	cfg       config.EnrichmentConfig
	now       func() time.Time
	log       zerolog.Logger
}

func NewOrchestrator(st Store, crawler Crawler, sentiment SentimentAnalyzer, pool Submitter, cfg config.EnrichmentConfig) *Orchestrator {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 72 * time.Hour
	}
	return &Orchestrator{
		store:     st,
		crawler:   crawler,
		sentiment: sentiment,
		pool:      pool,
		cfg:       cfg,
		now:       time.Now,
		log:       logging.With("enrichment"),
	}
}

// Touch starts a refresh if state calls for one and reports the status the
// caller should show. It never waits for the job and never fails the read.
func (o *Orchestrator) Touch(ctx context.Context, productID int64, state *models.EnrichmentState) models.AnalysisStatus {
	current := state.CurrentStatus()
	if !state.NeedsRefresh(o.now(), o.cfg.StaleAfter, o.cfg.JobTimeout) {
		return current
	}

	// A product without a source url cannot be crawled, so it is never claimed.
	url, err := o.store.SourceURL(ctx, productID)
	if err != nil {
		o.log.Error().Err(err).Int64("product_id", productID).Msg("source url lookup failed")
		return current
	}
	if url == "" {
		metrics.EnrichmentClaims.WithLabelValues("no_source").Inc()
		return current
	}

	token := uuid.New()
	won, err := o.store.Claim(ctx, productID, token, o.cfg.StaleAfter, o.cfg.JobTimeout)
	if err != nil {
		metrics.EnrichmentClaims.WithLabelValues("error").Inc()
		o.log.Error().Err(err).Int64("product_id", productID).Msg("claim failed")
		return current
	}
	if !won {
		metrics.EnrichmentClaims.WithLabelValues("lost").Inc()
		return current
	}
	metrics.EnrichmentClaims.WithLabelValues("won").Inc()

	if !o.pool.Submit(func(ctx context.Context) { o.Run(ctx, productID, token) }) {
		metrics.EnrichmentJobs.WithLabelValues("rejected").Inc()
		o.log.Warn().Int64("product_id", productID).Msg("enrichment queue full, failing claim")
		o.fail(ctx, productID, token)
		return models.StatusFailed
	}
	return models.StatusProgress
}

// Run executes a claimed job to COMPLETED or FAILED. A panicking job is
// recovered and marked FAILED.
func (o *Orchestrator) Run(ctx context.Context, productID int64, token uuid.UUID) {
	started := o.now()
	log := o.log.With().Int64("product_id", productID).Str("claim", token.String()).Logger()

	defer func() {
		if r := recover(); r != nil {
			metrics.EnrichmentJobs.WithLabelValues("failed").Inc()
			log.Error().Interface("panic", r).Msg("enrichment job panicked")
			o.fail(ctx, productID, token)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()

	err := o.run(jobCtx, productID, token, log)
	metrics.EnrichmentJobDuration.Observe(o.now().Sub(started).Seconds())

	switch {
	case err == nil:
		metrics.EnrichmentJobs.WithLabelValues("completed").Inc()
		log.Info().Dur("took", o.now().Sub(started)).Msg("enrichment completed")
	case errors.Is(err, store.ErrClaimLost):
		metrics.EnrichmentJobs.WithLabelValues("claim_lost").Inc()
		log.Warn().Msg("claim taken over, abandoning job")
	default:
		metrics.EnrichmentJobs.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("enrichment failed")
		o.fail(ctx, productID, token)
	}
}

func (o *Orchestrator) run(ctx context.Context, productID int64, token uuid.UUID, log zerolog.Logger) error {
	url, err := o.store.SourceURL(ctx, productID)
	if err != nil {
		return err
	}
	if url == "" {
		return errNoSourceURL
	}

	res, err := o.crawler.Crawl(ctx, url)
	if err != nil {
		return err
	}
	if res.Product == nil {
		return fmt.Errorf("crawl %s: no product data", url)
	}

	if err := o.store.SaveDetail(ctx, productID, token, *res.Product); err != nil {
		return err
	}

	inserted, err := o.store.SaveReviews(ctx, productID, res.Reviews)
	if err != nil {
		return err
	}
	log.Debug().Int("crawled", len(res.Reviews)).Int("inserted", inserted).Msg("reviews saved")

	var sentiment *models.Sentiment
	if texts := res.Texts(); len(texts) > 0 {
		sentiment, err = o.sentiment.Analyze(ctx, texts)
		if err != nil {
			// Keep whatever ratios are stored; the crawl itself succeeded.
			log.Warn().Err(err).Msg("sentiment analysis failed")
			sentiment = nil
		}
	}

	if err := o.store.Complete(ctx, productID, token, sentiment); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

// fail writes FAILED even when ctx is already done.
func (o *Orchestrator) fail(ctx context.Context, productID int64, token uuid.UUID) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()
	if err := o.store.Fail(failCtx, productID, token); err != nil && !errors.Is(err, store.ErrClaimLost) {
		o.log.Error().Err(err).Int64("product_id", productID).Msg("could not mark enrichment failed")
	}
}
