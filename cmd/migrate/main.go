package main

import (
	"context"

	"github.com/joho/godotenv"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logging"
	"storefront/internal/migrate"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	logger := logging.New("migrate", cfg.LogLevel)

	ctx := context.Background()
	pool, err := db.Connect(ctx, db.OptionsFrom(cfg), logger)
	if err != nil {
		logger.WithError(err).Fatal("connect db")
	}
	defer pool.Close()

	if err := migrate.Apply(ctx, pool, logger); err != nil {
		logger.WithError(err).Fatal("apply migrations")
	}

	logger.Info("migrations applied")
}
