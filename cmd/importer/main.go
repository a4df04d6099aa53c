package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/importer"
	"storefront/internal/logging"
	productrepo "storefront/internal/repository/product"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to a product or collection CSV export")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.FromEnv()
	logger := logging.New("importer", cfg.LogLevel)
	ctx := context.Background()

	f, err := os.Open(filePath)
	if err != nil {
		logger.WithError(err).Fatal("open file")
	}
	defer f.Close()

	kind, err := importer.DetectKind(f)
	if err != nil {
		logger.WithError(err).Fatal("detect csv kind")
	}
	if _, err := f.Seek(0, 0); err != nil {
		logger.WithError(err).Fatal("rewind file")
	}

	pool, err := db.Connect(ctx, db.OptionsFrom(cfg), logger)
	if err != nil {
		logger.WithError(err).Fatal("connect db")
	}
	defer pool.Close()

	imp := importer.NewCSVImporter(f, productrepo.NewPostgres(pool, logger, cfg.CartCurrency), cfg.CartCurrency, logger)

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		logger.WithError(err).Fatal("import failed")
	}

	fmt.Printf("Imported %d %s in %s\n", count, kind, time.Since(start).Truncate(time.Millisecond))
}
