package httpserver

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"storefront/internal/bridge"
	"storefront/internal/cartsession"
	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/pager"
	customersvc "storefront/internal/service/customer"
)

type cartGateway interface {
	AddItem(ctx context.Context, s cartsession.Session, variantID string) cartsession.Result
	RemoveItem(ctx context.Context, s cartsession.Session, lineID string) cartsession.Result
	UpdateQuantity(ctx context.Context, s cartsession.Session, lineID, variantID string, quantity int) cartsession.Result
	Cart(ctx context.Context, s cartsession.Session) (*domain.Cart, error)
}

type catalogService interface {
	pager.CatalogService
	Collections(ctx context.Context) ([]domain.Collection, error)
	Vendors(ctx context.Context) ([]string, error)
}

type customerService interface {
	Signup(ctx context.Context, in customersvc.SignupInput) (*domain.Customer, error)
	Login(ctx context.Context, email, password string) (*domain.Customer, string, error)
	Logout(ctx context.Context, token string) error
	LookupByToken(ctx context.Context, token string) (*domain.Customer, error)
	SessionTTLSeconds() int
}

// Deps bundles the services the router exposes.
type Deps struct {
	Gateway     cartGateway
	Catalog     catalogService
	CustomerSvc customerService
	// Signal is broadcast after every successful cart mutation and feeds
	// the event stream. Nil uses bridge.Default.
	Signal        *bridge.Signal
	PageSize      int
	SecureCookies bool
	CORSOrigins   []string

	// closing ends open event streams once the server starts shutting down.
	closing <-chan struct{}
}

// buildRouter wires routes for the API.
func buildRouter(logger logrus.FieldLogger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	logger = logging.OrDiscard(logger)
	if deps.Signal == nil {
		deps.Signal = bridge.Default
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	router.Use(cors.New(corsConfig(deps.CORSOrigins)))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	carts := &cartHandlers{
		gateway: deps.Gateway,
		signal:  deps.Signal,
		closing: deps.closing,
		secure:  deps.SecureCookies,
		logger:  logger,
	}
	router.GET("/cart", carts.get)
	router.POST("/cart/add", carts.add)
	router.POST("/cart/remove", carts.remove)
	router.POST("/cart/update", carts.update)
	router.GET("/cart/events", carts.events)

	catalog := &catalogHandlers{
		svc:     deps.Catalog,
		fetcher: pager.CatalogFetcher{Catalog: deps.Catalog, First: deps.PageSize},
		logger:  logger,
	}
	router.GET("/products", catalog.products)
	router.GET("/collections", catalog.collections)
	router.GET("/vendors", catalog.vendors)

	customers := &customerHandlers{svc: deps.CustomerSvc, secure: deps.SecureCookies, logger: logger}
	group := router.Group("/customer")
	group.POST("/sign-up", customers.signup)
	group.POST("/login", customers.login)
	group.POST("/logout", customers.logout)
	group.GET("/me", customers.me)

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// requestLogger logs one line per request, tagged with a request id that is
// echoed in the X-Request-ID header.
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)
		c.Set(requestIDKey, reqID)

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}

const requestIDKey = "request_id"

func requestLog(c *gin.Context, logger logrus.FieldLogger) logrus.FieldLogger {
	if id, ok := c.Get(requestIDKey); ok {
		return logger.WithField("request_id", id)
	}
	return logger
}
