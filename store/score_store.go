package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hyodream/api/models"
)

const interestKeyPrefix = "interest:user:"

// InterestKey is the sorted set holding actorID's category scores.
func InterestKey(actorID string) string {
	return interestKeyPrefix + actorID
}

// ScoreStore keeps per-actor category scores in Redis sorted sets.
// The whole key expires ttl after its latest increment.
type ScoreStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewScoreStore(rdb *redis.Client, ttl time.Duration) *ScoreStore {
	return &ScoreStore{rdb: rdb, ttl: ttl}
}

// Increment adds weight to the actor's category and resets the key TTL in one MULTI/EXEC.
func (s *ScoreStore) Increment(ctx context.Context, actorID, category string, weight float64) error {
	key := InterestKey(actorID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZIncrBy(ctx, key, weight, category)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment %s/%s: %w", key, category, err)
	}
	return nil
}

// TopCategory returns the highest-scored category, or "" when the actor has none.
func (s *ScoreStore) TopCategory(ctx context.Context, actorID string) (string, error) {
	members, err := s.rdb.ZRevRange(ctx, InterestKey(actorID), 0, 0).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read top category for %s: %w", actorID, err)
	}
	if len(members) == 0 {
		return "", nil
	}
	return members[0], nil
}

// Scores lists every category of the actor, highest first.
func (s *ScoreStore) Scores(ctx context.Context, actorID string) ([]models.CategoryScore, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, InterestKey(actorID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read scores for %s: %w", actorID, err)
	}
	out := make([]models.CategoryScore, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, models.CategoryScore{Category: member, Score: z.Score})
	}
	return out, nil
}
