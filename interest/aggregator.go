package interest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hyodream/api/config"
	"hyodream/api/logging"
	"hyodream/api/metrics"
	"hyodream/api/models"
	"hyodream/api/store"
)

// Stream is the consumer-group side of the event log.
type Stream interface {
	EnsureGroup(ctx context.Context, group string) error
	ReadGroup(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]redis.XMessage, error)
	ReadPending(ctx context.Context, group, consumer string, count int64) ([]redis.XMessage, error)
	Reclaim(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]redis.XMessage, error)
	Ack(ctx context.Context, group string, ids ...string) error
}

type Scores interface {
	Increment(ctx context.Context, actorID, category string, weight float64) error
}

// Archiver receives every scored event batch. Failures are logged only.
type Archiver interface {
	InsertInterestEvents(ctx context.Context, events []models.InterestEvent) error
}

// Aggregator drains the interest stream into score sets.
// Entries are acked only after their increment lands, so delivery is at-least-once.
// An entry whose increment failed stays in this consumer's pending list and is
// retried before any new entry is read.
type Aggregator struct {
	stream   Stream
	scores   Scores
	archiver Archiver
	cfg      config.InterestConfig
	log      zerolog.Logger
	now      func() time.Time

	retryPending bool
	lastReclaim  time.Time
}

func NewAggregator(stream Stream, scores Scores, archiver Archiver, cfg config.InterestConfig) *Aggregator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	return &Aggregator{
		stream:   stream,
		scores:   scores,
		archiver: archiver,
		cfg:      cfg,
		log:      logging.With("interest-aggregator"),
		now:      time.Now,

		retryPending: true,
	}
}

// Serve implements suture.Service.
func (a *Aggregator) Serve(ctx context.Context) error {
	if err := a.stream.EnsureGroup(ctx, a.cfg.Group); err != nil {
		return err
	}
	if err := a.reclaim(ctx); err != nil {
		return err
	}
	a.log.Info().Str("stream_group", a.cfg.Group).Str("consumer", a.cfg.Consumer).Msg("interest aggregator started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func (a *Aggregator) String() string { return "interest-aggregator" }

// Step processes one batch and returns how many entries were acked. Own
// pending entries go first, then entries idle on other consumers (every
// ReclaimIdle), then new entries.
func (a *Aggregator) Step(ctx context.Context) (int, error) {
	if a.retryPending {
		msgs, err := a.stream.ReadPending(ctx, a.cfg.Group, a.cfg.Consumer, a.cfg.BatchSize)
		if err != nil {
			return 0, err
		}
		if len(msgs) > 0 {
			return a.process(ctx, msgs)
		}
		a.retryPending = false
	}
	if a.cfg.ReclaimIdle > 0 && a.now().Sub(a.lastReclaim) >= a.cfg.ReclaimIdle {
		if err := a.reclaim(ctx); err != nil {
			return 0, err
		}
	}

	msgs, err := a.stream.ReadGroup(ctx, a.cfg.Group, a.cfg.Consumer, a.cfg.BatchSize, a.cfg.Block)
	if err != nil {
		return 0, err
	}
	return a.process(ctx, msgs)
}

func (a *Aggregator) reclaim(ctx context.Context) error {
	a.lastReclaim = a.now()
	msgs, err := a.stream.Reclaim(ctx, a.cfg.Group, a.cfg.Consumer, a.cfg.ReclaimIdle, a.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(msgs) > 0 {
		a.log.Info().Int("count", len(msgs)).Msg("reclaimed pending interest events")
	}
	_, err = a.process(ctx, msgs)
	return err
}

func (a *Aggregator) process(ctx context.Context, msgs []redis.XMessage) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	acks := make([]string, 0, len(msgs))
	scored := make([]models.InterestEvent, 0, len(msgs))

	for _, msg := range msgs {
		ev, err := store.DecodeEvent(msg)
		if err != nil {
			// Malformed entries would be redelivered forever.
			a.log.Warn().Err(err).Str("entry_id", msg.ID).Msg("dropping malformed interest event")
			metrics.InterestEventsConsumed.WithLabelValues("discarded").Inc()
			acks = append(acks, msg.ID)
			continue
		}
		if ev.Category == "" {
			metrics.InterestEventsConsumed.WithLabelValues("discarded").Inc()
			acks = append(acks, msg.ID)
			continue
		}
		if err := a.scores.Increment(ctx, ev.ActorID, ev.Category, ev.Weight()); err != nil {
			metrics.InterestEventsConsumed.WithLabelValues("error").Inc()
			a.retryPending = true
			if ackErr := a.stream.Ack(ctx, a.cfg.Group, acks...); ackErr != nil {
				a.log.Error().Err(ackErr).Msg("ack failed")
			}
			a.archive(ctx, scored)
			return len(acks), fmt.Errorf("score event %s: %w", msg.ID, err)
		}
		metrics.InterestEventsConsumed.WithLabelValues("scored").Inc()
		acks = append(acks, msg.ID)
		scored = append(scored, ev)
	}

	if err := a.stream.Ack(ctx, a.cfg.Group, acks...); err != nil {
		return 0, err
	}
	a.archive(ctx, scored)
	return len(acks), nil
}

func (a *Aggregator) archive(ctx context.Context, events []models.InterestEvent) {
	if a.archiver == nil || len(events) == 0 {
		return
	}
	if err := a.archiver.InsertInterestEvents(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn().Err(err).Int("count", len(events)).Msg("archiving interest events failed")
	}
}
