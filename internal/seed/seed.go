// Package seed loads a small demo catalog for manual testing and for the
// in-memory platform.
package seed

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/importer"
)

type productSeed struct {
	Handle      string
	Title       string
	Description string
	Vendor      string
	Tags        []string
	Rank        int
	Variants    []variantSeed
}

type variantSeed struct {
	Title     string
	SKU       string
	Price     string
	Available bool
}

type collectionSeed struct {
	Handle   string
	Title    string
	Products []string
}

var products = []productSeed{
	{
		Handle: "acme-tee", Title: "Acme Tee", Vendor: "Acme", Rank: 1,
		Description: "Soft cotton tee",
		Tags:        []string{"apparel", "cotton"},
		Variants: []variantSeed{
			{Title: "Small", SKU: "ACME-TEE-S", Price: "19.99", Available: true},
			{Title: "Large", SKU: "ACME-TEE-L", Price: "21.99", Available: true},
		},
	},
	{
		Handle: "acme-mug", Title: "Acme Mug", Vendor: "Acme", Rank: 3,
		Description: "Ceramic mug",
		Tags:        []string{"kitchen"},
		Variants:    []variantSeed{{Title: "Default Title", SKU: "ACME-MUG", Price: "12.99", Available: true}},
	},
	{
		Handle: "globex-hoodie", Title: "Globex Hoodie", Vendor: "Globex Inc", Rank: 2,
		Description: "Heavyweight hoodie",
		Tags:        []string{"apparel"},
		Variants:    []variantSeed{{Title: "Default Title", SKU: "GLOBEX-HOODIE", Price: "54.00", Available: true}},
	},
	{
		Handle: "globex-sticker", Title: "Globex Sticker Pack", Vendor: "Globex Inc", Rank: 5,
		Tags:     []string{"accessories"},
		Variants: []variantSeed{{Title: "Default Title", SKU: "GLOBEX-STICKERS", Price: "4.50", Available: false}},
	},
	{
		Handle: "initech-bottle", Title: "Initech Bottle", Vendor: "Initech", Rank: 4,
		Description: "Insulated steel bottle",
		Tags:        []string{"kitchen", "outdoor"},
		Variants:    []variantSeed{{Title: "Default Title", SKU: "INITECH-BOTTLE", Price: "28.00", Available: true}},
	},
}

var collections = []collectionSeed{
	{Handle: "apparel", Title: "Apparel", Products: []string{"acme-tee", "globex-hoodie"}},
	{Handle: "kitchen", Title: "Kitchen", Products: []string{"acme-mug", "initech-bottle"}},
}

// Apply upserts the demo catalog. It is idempotent: products are keyed by
// handle and variants by SKU.
func Apply(ctx context.Context, catalog importer.CatalogWriter, currency string) error {
	for _, p := range products {
		product, err := p.toDomain(currency)
		if err != nil {
			return err
		}
		if _, err := catalog.Upsert(ctx, product); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Handle, err)
		}
	}
	for _, c := range collections {
		if _, err := catalog.UpsertCollection(ctx, domain.Collection{Handle: c.Handle, Title: c.Title}, c.Products); err != nil {
			return fmt.Errorf("upsert collection %s: %w", c.Handle, err)
		}
	}
	return nil
}

func (p productSeed) toDomain(currency string) (domain.Product, error) {
	out := domain.Product{
		Handle:          p.Handle,
		Title:           p.Title,
		Description:     p.Description,
		Vendor:          p.Vendor,
		Tags:            p.Tags,
		BestSellingRank: p.Rank,
	}
	for _, v := range p.Variants {
		price, err := decimal.NewFromString(v.Price)
		if err != nil {
			return domain.Product{}, fmt.Errorf("seed price %s: %w", v.SKU, err)
		}
		out.Variants = append(out.Variants, domain.Variant{
			Title:            v.Title,
			SKU:              v.SKU,
			Price:            domain.Money{Amount: price, CurrencyCode: currency},
			AvailableForSale: v.Available,
		})
	}
	return out, nil
}
