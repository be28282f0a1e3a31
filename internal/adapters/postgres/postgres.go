package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cryptoKline/internal/adapters/sqlstore"
	"cryptoKline/internal/ports"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Config holds connection settings for the Postgres kline store.
type Config struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	Timeout         time.Duration
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Logger          ports.Logger
}

// NewRepository connects to Postgres and returns a kline store on it.
func NewRepository(cfg Config) (*sqlstore.Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Postgres repository")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required: %w", ports.ErrConfigurationError)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = 25
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = time.Hour
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = 15 * time.Minute
	}

	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database: %w: %w", ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "Postgres repository initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "Postgres database connection established", map[string]interface{}{
		"maxOpen": cfg.MaxOpen,
		"maxIdle": cfg.MaxIdle,
	})
	return sqlstore.New(db, sqlstore.Postgres, cfg.Logger), nil
}
