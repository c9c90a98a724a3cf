package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"hyodream/api/models"
)

func TestEventLog_AppendReadAck(t *testing.T) {
	_, rdb := newTestRedis(t)
	log := NewEventLog(rdb, "product-view-stream", 1000)
	ctx := context.Background()

	if err := log.EnsureGroup(ctx, "agg"); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	if err := log.EnsureGroup(ctx, "agg"); err != nil {
		t.Fatalf("EnsureGroup second call: %v", err)
	}

	ts := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	in := models.InterestEvent{
		EventID: "e1", ActorID: "user:4", ProductID: 42,
		Category: "vitamins", Kind: models.EventCart, Timestamp: ts,
	}
	if _, err := log.Append(ctx, in); err != nil {
		t.Fatalf("Append: %v", err)
	}

	msgs, err := log.ReadGroup(ctx, "agg", "c1", 10, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	out, err := DecodeEvent(msgs[0])
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if !out.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", out.Timestamp, ts)
	}
	out.Timestamp = in.Timestamp
	if out != in {
		t.Errorf("decoded %+v, want %+v", out, in)
	}

	if err := log.Ack(ctx, "agg", msgs[0].ID); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	pending, err := rdb.XPending(ctx, "product-view-stream", "agg").Result()
	if err != nil {
		t.Fatal(err)
	}
	if pending.Count != 0 {
		t.Errorf("pending = %d after ack", pending.Count)
	}

	// Nothing new: block times out without error.
	msgs, err = log.ReadGroup(ctx, "agg", "c1", 10, 10*time.Millisecond)
	if err != nil || len(msgs) != 0 {
		t.Errorf("idle read: msgs=%d err=%v", len(msgs), err)
	}
}

func TestEventLog_ReclaimTakesOverPending(t *testing.T) {
	_, rdb := newTestRedis(t)
	log := NewEventLog(rdb, "s", 0)
	ctx := context.Background()

	_ = log.EnsureGroup(ctx, "g")
	for i := 0; i < 3; i++ {
		if _, err := log.Append(ctx, models.InterestEvent{ActorID: "a", Category: "c", Kind: models.EventClick}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := log.ReadGroup(ctx, "g", "crashed", 10, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	msgs, err := log.Reclaim(ctx, "g", "survivor", 0, 2)
	if err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("reclaimed %d, want 3", len(msgs))
	}
}

func TestEventLog_ReadPendingReturnsOwnUnacked(t *testing.T) {
	_, rdb := newTestRedis(t)
	log := NewEventLog(rdb, "s", 0)
	ctx := context.Background()
	_ = log.EnsureGroup(ctx, "g")
	for i := 0; i < 2; i++ {
		if _, err := log.Append(ctx, models.InterestEvent{ActorID: "a", Category: "c", Kind: models.EventClick}); err != nil {
			t.Fatal(err)
		}
	}
	delivered, err := log.ReadGroup(ctx, "g", "c1", 10, 10*time.Millisecond)
	if err != nil || len(delivered) != 2 {
		t.Fatalf("read: %d %v", len(delivered), err)
	}
	if err := log.Ack(ctx, "g", delivered[0].ID); err != nil {
		t.Fatal(err)
	}

	msgs, err := log.ReadPending(ctx, "g", "c1", 10)
	if err != nil {
		t.Fatalf("ReadPending: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != delivered[1].ID {
		t.Errorf("pending = %+v, want only %s", msgs, delivered[1].ID)
	}

	other, err := log.ReadPending(ctx, "g", "c2", 10)
	if err != nil || len(other) != 0 {
		t.Errorf("other consumer pending = %d, %v", len(other), err)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr bool
		check   func(t *testing.T, ev models.InterestEvent)
	}{
		{
			name:   "falls back to entry id",
			values: map[string]any{"userId": "user:1", "category": " bones ", "type": "ORDER"},
			check: func(t *testing.T, ev models.InterestEvent) {
				if ev.EventID != "1-0" || ev.Category != "bones" || ev.Kind != models.EventOrder {
					t.Errorf("got %+v", ev)
				}
			},
		},
		{name: "missing actor", values: map[string]any{"category": "x"}, wantErr: true},
		{name: "bad product id", values: map[string]any{"userId": "u", "productId": "abc"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent(redis.XMessage{ID: "1-0", Values: tt.values})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}
