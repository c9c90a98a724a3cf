package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"hyodream/api/logging"
)

//go:embed schema.sql
var schemaSQL string

type DBClient struct {
	DB *sql.DB
}

func NewPostgresDB(ctx context.Context, dbURL string) (*DBClient, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	logging.Info().Msg("connected to PostgreSQL")
	return &DBClient{DB: db}, nil
}

// EnsureSchema applies the idempotent schema. Safe on every boot.
func (c *DBClient) EnsureSchema(ctx context.Context) error {
	return ApplySchema(ctx, c.DB)
}

func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (c *DBClient) Close() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing PostgreSQL connection")
		} else {
			logging.Info().Msg("PostgreSQL connection closed")
		}
	}
}
