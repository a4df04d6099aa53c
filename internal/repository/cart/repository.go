package cart

import (
	"context"

	"storefront/internal/domain"
)

type Repository interface {
	Create(ctx context.Context, currency string) (*domain.Cart, error)
	// GetByID returns the cart with priced lines; costs are left for the caller to derive.
	GetByID(ctx context.Context, id string) (*domain.Cart, error)
	// AddLine adds quantity of variant, merging into an existing line for the same variant.
	AddLine(ctx context.Context, cartID string, variant domain.Variant, quantity int) error
	RemoveLines(ctx context.Context, cartID string, lineIDs []string) error
	// SetLineQuantity deletes the line when quantity <= 0.
	SetLineQuantity(ctx context.Context, cartID, lineID string, quantity int) error
}
