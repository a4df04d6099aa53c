package cartsession

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/logging"
)

// CacheTag marks cached cart reads; every successful mutation invalidates it.
const CacheTag = "cart"

// CartService is the remote cart store.
type CartService interface {
	Create(ctx context.Context) (*domain.Cart, error)
	Get(ctx context.Context, id string) (*domain.Cart, error)
	AddLines(ctx context.Context, id string, lines []domain.LineInput) (*domain.Cart, error)
	RemoveLines(ctx context.Context, id string, lineIDs []string) (*domain.Cart, error)
	UpdateLines(ctx context.Context, id string, lines []domain.LineUpdate) (*domain.Cart, error)
}

type Gateway struct {
	carts  CartService
	cache  *cache.Tagged[*domain.Cart]
	logger logrus.FieldLogger
}

// NewGateway builds a Gateway. A nil cache disables read caching.
func NewGateway(carts CartService, c *cache.Tagged[*domain.Cart], logger logrus.FieldLogger) *Gateway {
	return &Gateway{carts: carts, cache: c, logger: logging.OrDiscard(logger)}
}

// EnsureCart returns the session's cart, creating one when the session has
// none or its cart no longer resolves. The cookie is (re)written either way.
func (g *Gateway) EnsureCart(ctx context.Context, s Session) (string, *domain.Cart, error) {
	if id := s.CartID(); id != "" {
		cart, err := g.carts.Get(ctx, id)
		switch {
		case err == nil && cart != nil:
			s.SetCartID(id)
			return id, cart, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return "", nil, &domain.RemoteError{Op: "getCart", Err: err}
		}
		g.logger.WithField("cart_id", id).Info("cart cookie no longer resolves, creating a new cart")
	}

	cart, err := g.carts.Create(ctx)
	if err != nil {
		return "", nil, &domain.RemoteError{Op: "createCart", Err: err}
	}
	s.SetCartID(cart.ID)
	return cart.ID, cart, nil
}

// AddItem adds one unit of variantID, creating the cart if needed.
func (g *Gateway) AddItem(ctx context.Context, s Session, variantID string) Result {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return g.reject("Missing product variant ID", "variantId")
	}

	cartID, _, err := g.EnsureCart(ctx, s)
	if err != nil {
		return g.fail("Error adding item to cart", err)
	}
	if _, err := g.carts.AddLines(ctx, cartID, []domain.LineInput{{MerchandiseID: variantID, Quantity: 1}}); err != nil {
		return g.fail("Error adding item to cart", remote("addToCart", err))
	}
	return g.committed(s, cartID)
}

// RemoveItem removes lineID from the session's cart.
func (g *Gateway) RemoveItem(ctx context.Context, s Session, lineID string) Result {
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return g.reject("Missing line ID", "lineId")
	}
	cartID := s.CartID()
	if cartID == "" {
		return g.reject("Missing cart ID", CookieName)
	}

	if _, err := g.carts.RemoveLines(ctx, cartID, []string{lineID}); err != nil {
		return g.fail("Error removing item from cart", remote("removeFromCart", err))
	}
	return g.committed(s, cartID)
}

// UpdateQuantity sets the quantity of lineID. Zero removes the line.
func (g *Gateway) UpdateQuantity(ctx context.Context, s Session, lineID, variantID string, quantity int) Result {
	lineID = strings.TrimSpace(lineID)
	variantID = strings.TrimSpace(variantID)
	if lineID == "" || variantID == "" {
		return g.reject("Missing required fields", "lineId")
	}
	if quantity < 0 {
		return g.reject("Quantity must not be negative", "quantity")
	}
	cartID := s.CartID()
	if cartID == "" {
		return g.reject("Missing cart ID", CookieName)
	}

	var err error
	if quantity == 0 {
		_, err = g.carts.RemoveLines(ctx, cartID, []string{lineID})
		err = remote("removeFromCart", err)
	} else {
		_, err = g.carts.UpdateLines(ctx, cartID, []domain.LineUpdate{{ID: lineID, MerchandiseID: variantID, Quantity: quantity}})
		err = remote("updateCart", err)
	}
	if err != nil {
		return g.fail("Error updating item quantity", err)
	}
	return g.committed(s, cartID)
}

// Cart reads the session's cart through the cache. A missing cookie or an
// unresolvable cart yields nil without error.
func (g *Gateway) Cart(ctx context.Context, s Session) (*domain.Cart, error) {
	id := s.CartID()
	if id == "" {
		return nil, nil
	}
	load := func(ctx context.Context) (*domain.Cart, error) {
		return g.carts.Get(ctx, id)
	}

	var (
		cart *domain.Cart
		err  error
	)
	if g.cache != nil {
		cart, err = g.cache.GetOrLoad(ctx, CacheTag+":"+id, load, CacheTag)
	} else {
		cart, err = load(ctx)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, &domain.RemoteError{Op: "getCart", Err: err}
	}
	return cart, nil
}

func (g *Gateway) committed(s Session, cartID string) Result {
	s.SetCartID(cartID)
	if g.cache != nil {
		g.cache.InvalidateTag(CacheTag)
	}
	g.logger.WithField("cart_id", cartID).Debug("cart mutation committed")
	return success()
}

func (g *Gateway) reject(message, field string) Result {
	return failure(message, domain.NewValidationError(field, message))
}

func (g *Gateway) fail(message string, err error) Result {
	g.logger.WithError(err).Error(message)
	if domain.IsValidation(err) {
		var v *domain.ValidationError
		errors.As(err, &v)
		return failure(v.Message, err)
	}
	return failure(message, err)
}

// remote wraps service failures. Validation errors pass through unchanged.
func remote(op string, err error) error {
	if err == nil || domain.IsValidation(err) {
		return err
	}
	return &domain.RemoteError{Op: op, Err: err}
}
