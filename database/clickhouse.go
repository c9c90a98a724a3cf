package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"hyodream/api/config"
	"hyodream/api/logging"
)

type ClickHouseClient struct {
	Conn clickhouse.Conn
}

const interestEventsDDL = `
CREATE TABLE IF NOT EXISTS interest_events (
    event_id   String,
    actor_id   String,
    product_id Int64,
    category   String,
    event_kind LowCardinality(String),
    weight     Float64,
    timestamp  DateTime64(3)
) ENGINE = MergeTree
ORDER BY (timestamp, actor_id)`

func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseClient, error) {
	if cfg.Host == "" || cfg.NativePort == 0 || cfg.Database == "" {
		return nil, fmt.Errorf("clickhouse host, native port, or database is not set")
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.NativePort)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "hyodream-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: time.Second * 5,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(pingCtx, interestEventsDDL); err != nil {
		return nil, fmt.Errorf("failed to create interest_events table: %w", err)
	}

	logging.Info().Str("addr", options.Addr[0]).Msg("connected to ClickHouse")
	return &ClickHouseClient{Conn: conn}, nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn != nil {
		c.Conn.Close()
		logging.Info().Msg("ClickHouse connection closed")
	}
}
