package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"storefront/internal/config"
	"storefront/internal/logging"
)

// Options controls pool sizing and how long Connect keeps trying.
type Options struct {
	DSN      string
	MaxConns int32
	Attempts int
	Backoff  time.Duration
}

// OptionsFrom reads pool options from cfg.
func OptionsFrom(cfg config.Config) Options {
	return Options{
		DSN:      cfg.DBConnString,
		MaxConns: int32(cfg.DBMaxConns),
		Attempts: cfg.DBConnectAttempts,
		Backoff:  time.Second,
	}
}

// Connect opens a pgx pool and pings it, retrying while the database is
// still coming up.
func Connect(ctx context.Context, opts Options, log logrus.FieldLogger) (*pgxpool.Pool, error) {
	log = logging.OrDiscard(log)
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.ConnConfig.RuntimeParams["application_name"] = "storefront"

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	entry := log.WithField("host", cfg.ConnConfig.Host).WithField("database", cfg.ConnConfig.Database)

	for attempt := 1; ; attempt++ {
		pool, err := open(ctx, cfg)
		if err == nil {
			entry.WithField("max_conns", cfg.MaxConns).Info("connected to postgres")
			return pool, nil
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("connect after %d attempt(s): %w", attempt, err)
		}
		entry.WithError(err).WithField("attempt", attempt).Warn("postgres not ready, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Backoff * time.Duration(attempt)):
		}
	}
}

func open(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
