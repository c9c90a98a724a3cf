package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hyodream/api/models"
)

// Stream entry field names.
const (
	fieldEventID   = "eventId"
	fieldActor     = "userId"
	fieldProduct   = "productId"
	fieldCategory  = "category"
	fieldKind      = "type"
	fieldTimestamp = "timestamp"
)

// EventLog is the append-only interest stream backed by a Redis stream.
type EventLog struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewEventLog(rdb *redis.Client, stream string, maxLen int64) *EventLog {
	return &EventLog{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (l *EventLog) Stream() string { return l.stream }

// Append adds ev to the stream, trimming it approximately to maxLen.
func (l *EventLog) Append(ctx context.Context, ev models.InterestEvent) (string, error) {
	args := &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]any{
			fieldEventID:   ev.EventID,
			fieldActor:     ev.ActorID,
			fieldProduct:   strconv.FormatInt(ev.ProductID, 10),
			fieldCategory:  ev.Category,
			fieldKind:      string(ev.Kind),
			fieldTimestamp: strconv.FormatInt(ev.Timestamp.UnixMilli(), 10),
		},
	}
	if l.maxLen > 0 {
		args.MaxLen = l.maxLen
		args.Approx = true
	}
	id, err := l.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", l.stream, err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group (and the stream) if missing.
func (l *EventLog) EnsureGroup(ctx context.Context, group string) error {
	err := l.rdb.XGroupCreateMkStream(ctx, l.stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group %s on %s: %w", group, l.stream, err)
	}
	return nil
}

// ReadGroup blocks up to block for new entries. A timeout returns no entries and no error.
func (l *EventLog) ReadGroup(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]redis.XMessage, error) {
	res, err := l.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{l.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read group %s: %w", group, err)
	}
	var msgs []redis.XMessage
	for _, s := range res {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// ReadPending returns entries already delivered to consumer but not yet acked,
// oldest first. It never blocks.
func (l *EventLog) ReadPending(ctx context.Context, group, consumer string, count int64) ([]redis.XMessage, error) {
	res, err := l.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{l.stream, "0"},
		Count:    count,
		Block:    -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pending entries of %s: %w", consumer, err)
	}
	var msgs []redis.XMessage
	for _, s := range res {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// Reclaim takes over entries left pending by any consumer for longer than minIdle.
func (l *EventLog) Reclaim(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]redis.XMessage, error) {
	var out []redis.XMessage
	start := "0-0"
	for {
		msgs, next, err := l.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   l.stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    count,
		}).Result()
		if err != nil {
			return out, fmt.Errorf("failed to reclaim pending entries: %w", err)
		}
		out = append(out, msgs...)
		if next == "0-0" || next == "" || len(msgs) == 0 {
			return out, nil
		}
		start = next
	}
}

func (l *EventLog) Ack(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := l.rdb.XAck(ctx, l.stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack %d entries: %w", len(ids), err)
	}
	return nil
}

// DecodeEvent parses a stream entry. Missing optional fields are left zero.
func DecodeEvent(msg redis.XMessage) (models.InterestEvent, error) {
	ev := models.InterestEvent{
		EventID:  field(msg, fieldEventID),
		ActorID:  field(msg, fieldActor),
		Category: strings.TrimSpace(field(msg, fieldCategory)),
		Kind:     models.EventKind(field(msg, fieldKind)),
	}
	if ev.EventID == "" {
		ev.EventID = msg.ID
	}
	if ev.ActorID == "" {
		return ev, fmt.Errorf("stream entry %s: missing %s", msg.ID, fieldActor)
	}
	if v := field(msg, fieldProduct); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return ev, fmt.Errorf("stream entry %s: bad %s %q: %w", msg.ID, fieldProduct, v, err)
		}
		ev.ProductID = id
	}
	if v := field(msg, fieldTimestamp); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			ev.Timestamp = time.UnixMilli(ms).UTC()
		}
	}
	return ev, nil
}

func field(msg redis.XMessage, key string) string {
	v, ok := msg.Values[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
