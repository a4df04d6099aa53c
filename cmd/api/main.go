package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"storefront/internal/bridge"
	"storefront/internal/cache"
	"storefront/internal/cartsession"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/domain"
	"storefront/internal/httpserver"
	"storefront/internal/logging"
	"storefront/internal/migrate"
	"storefront/internal/platform/memory"
	cartrepo "storefront/internal/repository/cart"
	customerrepo "storefront/internal/repository/customer"
	productrepo "storefront/internal/repository/product"
	sessionrepo "storefront/internal/repository/session"
	"storefront/internal/seed"
	cartsvc "storefront/internal/service/cart"
	catalogsvc "storefront/internal/service/catalog"
	customersvc "storefront/internal/service/customer"
)

type repositories struct {
	products  productrepo.Repository
	carts     cartrepo.Repository
	customers customerrepo.Repository
	sessions  sessionrepo.Repository
}

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	logger := logging.New("api", cfg.LogLevel)

	ctx := context.Background()

	if cfg.EnableTracing {
		tp, err := newTracerProvider(logger)
		if err != nil {
			logger.WithError(err).Fatal("init tracing")
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.WithError(err).Warn("shutdown tracer provider")
			}
		}()
	}

	var (
		dbpool *pgxpool.Pool
		repos  repositories
	)
	switch strings.ToLower(cfg.Platform) {
	case "memory":
		catalog := memory.NewCatalog(cfg.CartCurrency)
		if err := seed.Apply(ctx, catalog, cfg.CartCurrency); err != nil {
			logger.WithError(err).Fatal("seed memory catalog")
		}
		repos = repositories{
			products:  catalog,
			carts:     memory.NewCarts(catalog),
			customers: memory.NewCustomers(),
			sessions:  memory.NewSessions(),
		}
		logger.Info("using in-memory platform with demo catalog")
	default:
		pool, err := db.Connect(ctx, db.OptionsFrom(cfg), logger)
		if err != nil {
			logger.WithError(err).Fatal("connect to db")
		}
		defer pool.Close()
		if err := migrate.Apply(ctx, pool, logger); err != nil {
			logger.WithError(err).Fatal("apply migrations")
		}
		dbpool = pool
		repos = repositories{
			products:  productrepo.NewPostgres(pool, logger, cfg.CartCurrency),
			carts:     cartrepo.NewPostgres(pool, logger),
			customers: customerrepo.NewPostgres(pool, logger),
			sessions:  sessionrepo.NewPostgres(pool, logger),
		}
	}

	cartService := cartsvc.New(repos.carts, repos.products, cartsvc.Options{
		Currency: cfg.CartCurrency,
		TaxRate:  cfg.CartTaxRate,
		Logger:   logger,
	})
	gateway := cartsession.NewGateway(cartService, cache.NewTagged[*domain.Cart](cfg.CartCacheSize, cfg.CartCacheTTL), logger)

	sig := bridge.Default
	var relay *bridge.Relay
	if cfg.RabbitURL != "" {
		r, err := bridge.DialRelay(cfg.RabbitURL, cfg.CartEventsExchange, sig, logger)
		if err != nil {
			logger.WithError(err).Fatal("dial cart event relay")
		}
		if err := r.Start(ctx); err != nil {
			logger.WithError(err).Fatal("start cart event relay")
		}
		relay = r
	}

	customers := customersvc.New(repos.customers, repos.sessions, logger)
	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go purgeSessions(purgeCtx, customers, logger)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		Gateway:       gateway,
		Catalog:       catalogsvc.New(repos.products, catalogsvc.Options{PageSize: cfg.CatalogPageSize, Logger: logger}),
		CustomerSvc:   customers,
		Signal:        sig,
		PageSize:      cfg.CatalogPageSize,
		SecureCookies: cfg.Production(),
		CORSOrigins:   cfg.CORSOrigins,
	}, cfg.EnableTracing)
	if err != nil {
		logger.WithError(err).Fatal("init server")
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	var relayDone <-chan struct{}
	if relay != nil {
		relayDone = relay.Done()
	}

	exitCode := 0
	select {
	case s := <-stopCh:
		logger.WithField("signal", s.String()).Info("shutting down")
	case err := <-serverErr:
		logger.WithError(err).Error("server error")
		exitCode = 1
	case <-relayDone:
		logger.Error("cart event relay stopped, shutting down for restart")
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	} else {
		logger.Info("server stopped")
	}
	if relay != nil {
		relay.Close()
	}
	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}

// purgeSessions deletes expired login sessions once an hour.
func purgeSessions(ctx context.Context, customers *customersvc.Service, logger logrus.FieldLogger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := customers.PurgeExpiredSessions(ctx); err != nil {
				logger.WithError(err).Warn("purge expired sessions")
			}
		}
	}
}
