package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"hyodream/api/config"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer c.Close()

	if err := c.Client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Errorf("got %q", got)
	}
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedis(context.Background(), config.RedisConfig{Addr: addr}); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestNewClickHouseDB_RequiresHost(t *testing.T) {
	if _, err := NewClickHouseDB(context.Background(), config.ClickHouseConfig{}); err == nil {
		t.Fatal("expected error when host is empty")
	}
}
