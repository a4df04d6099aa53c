package product

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

// Criteria narrows a product listing. Terms are AND-ed, Vendors are OR-ed,
// Tags are AND-ed, and price bounds must hold for a single variant.
type Criteria struct {
	Terms      []string
	Vendors    []string
	Tags       []string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Collection string
}

type ListInput struct {
	Criteria Criteria
	SortKey  domain.SortKey
	Reverse  bool
	Offset   int
	Limit    int
}

type Repository interface {
	// List returns up to Limit products and whether more follow.
	List(ctx context.Context, in ListInput) ([]domain.Product, bool, error)
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)
	GetCollection(ctx context.Context, handle string) (*domain.Collection, error)
	ListCollections(ctx context.Context) ([]domain.Collection, error)
	ListVendors(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, p domain.Product) (*domain.Product, error)
	UpsertCollection(ctx context.Context, c domain.Collection, productHandles []string) (*domain.Collection, error)
}
