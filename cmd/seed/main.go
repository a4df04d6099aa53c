package main

import (
	"context"

	"github.com/joho/godotenv"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logging"
	productrepo "storefront/internal/repository/product"
	"storefront/internal/seed"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	logger := logging.New("seed", cfg.LogLevel)

	ctx := context.Background()
	pool, err := db.Connect(ctx, db.OptionsFrom(cfg), logger)
	if err != nil {
		logger.WithError(err).Fatal("connect db")
	}
	defer pool.Close()

	if err := seed.Apply(ctx, productrepo.NewPostgres(pool, logger, cfg.CartCurrency), cfg.CartCurrency); err != nil {
		logger.WithError(err).Fatal("seed apply")
	}

	logger.Info("seed applied")
}
