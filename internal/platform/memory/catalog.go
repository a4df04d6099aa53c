// Package memory holds in-process implementations of the catalog and cart
// repositories, used by PLATFORM=memory and by tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/domain"
	productrepo "storefront/internal/repository/product"
)

type Catalog struct {
	mu          sync.RWMutex
	currency    string
	products    map[string]*domain.Product
	byHandle    map[string]string
	variants    map[string]domain.Variant
	collections map[string]domain.Collection
	now         func() time.Time
}

var _ productrepo.Repository = (*Catalog)(nil)

func NewCatalog(currency string) *Catalog {
	return &Catalog{
		currency:    currency,
		products:    make(map[string]*domain.Product),
		byHandle:    make(map[string]string),
		variants:    make(map[string]domain.Variant),
		collections: make(map[string]domain.Collection),
		now:         time.Now,
	}
}

func (c *Catalog) List(_ context.Context, in productrepo.ListInput) ([]domain.Product, bool, error) {
	c.mu.RLock()
	var matched []domain.Product
	for _, p := range c.products {
		if matches(*p, in.Criteria) {
			matched = append(matched, clone(*p))
		}
	}
	c.mu.RUnlock()

	sortProducts(matched, in.SortKey, in.Reverse)

	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	if in.Offset >= len(matched) {
		return []domain.Product{}, false, nil
	}
	end := in.Offset + limit
	hasMore := end < len(matched)
	if end > len(matched) {
		end = len(matched)
	}
	return matched[in.Offset:end], hasMore, nil
}

func (c *Catalog) GetVariant(_ context.Context, id string) (*domain.Variant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

func (c *Catalog) GetCollection(_ context.Context, handle string) (*domain.Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.collections[handle]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &col, nil
}

func (c *Catalog) ListCollections(_ context.Context) ([]domain.Collection, error) {
	c.mu.RLock()
	out := make([]domain.Collection, 0, len(c.collections))
	for _, col := range c.collections {
		out = append(out, col)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *Catalog) ListVendors(_ context.Context) ([]string, error) {
	c.mu.RLock()
	seen := make(map[string]struct{})
	for _, p := range c.products {
		if p.Vendor != "" {
			seen[p.Vendor] = struct{}{}
		}
	}
	c.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Catalog) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := clone(p)
	if id, ok := c.byHandle[p.Handle]; ok {
		existing := c.products[id]
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
		stored.Collections = existing.Collections
		for _, v := range existing.Variants {
			delete(c.variants, v.ID)
		}
	} else {
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = c.now()
		}
	}

	for i := range stored.Variants {
		v := &stored.Variants[i]
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.Price.CurrencyCode == "" {
			v.Price.CurrencyCode = c.currency
		}
		v.ProductID = stored.ID
		c.variants[v.ID] = *v
	}
	stored.PriceRange = domain.PriceRangeOf(stored.Variants, c.currency)
	stored.AvailableForSale = false
	for _, v := range stored.Variants {
		if v.AvailableForSale {
			stored.AvailableForSale = true
			break
		}
	}

	c.products[stored.ID] = &stored
	c.byHandle[stored.Handle] = stored.ID
	out := clone(stored)
	return &out, nil
}

func (c *Catalog) UpsertCollection(_ context.Context, col domain.Collection, productHandles []string) (*domain.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.collections[col.Handle]; ok {
		col.ID = existing.ID
	} else if col.ID == "" {
		col.ID = uuid.NewString()
	}
	c.collections[col.Handle] = col

	for _, h := range productHandles {
		id, ok := c.byHandle[h]
		if !ok {
			continue
		}
		p := c.products[id]
		if !containsFold(p.Collections, col.Handle) {
			p.Collections = append(p.Collections, col.Handle)
			sort.Strings(p.Collections)
		}
	}
	return &col, nil
}

func matches(p domain.Product, c productrepo.Criteria) bool {
	for _, term := range c.Terms {
		t := strings.ToLower(term)
		if !strings.Contains(strings.ToLower(p.Title), t) &&
			!strings.Contains(strings.ToLower(p.Description), t) &&
			!strings.Contains(strings.ToLower(p.Vendor), t) &&
			!anyContains(p.Tags, t) {
			return false
		}
	}
	if len(c.Vendors) > 0 && !containsFold(c.Vendors, p.Vendor) {
		return false
	}
	for _, tag := range c.Tags {
		if !containsFold(p.Tags, tag) {
			return false
		}
	}
	if c.MinPrice != nil || c.MaxPrice != nil {
		ok := false
		for _, v := range p.Variants {
			if c.MinPrice != nil && v.Price.Amount.LessThan(*c.MinPrice) {
				continue
			}
			if c.MaxPrice != nil && v.Price.Amount.GreaterThan(*c.MaxPrice) {
				continue
			}
			ok = true
			break
		}
		if !ok {
			return false
		}
	}
	if c.Collection != "" && !containsFold(p.Collections, c.Collection) {
		return false
	}
	return true
}

func sortProducts(products []domain.Product, key domain.SortKey, reverse bool) {
	less := func(a, b domain.Product) int {
		switch key {
		case domain.SortBestSelling:
			return a.BestSellingRank - b.BestSellingRank
		case domain.SortPrice:
			return a.PriceRange.Min.Amount.Cmp(b.PriceRange.Min.Amount)
		case domain.SortTitle:
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(products, func(i, j int) bool {
		cmp := less(products[i], products[j])
		if reverse {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp < 0
		}
		return products[i].ID < products[j].ID
	})
}

func clone(p domain.Product) domain.Product {
	p.Tags = append([]string(nil), p.Tags...)
	p.Variants = append([]domain.Variant(nil), p.Variants...)
	p.Collections = append([]string(nil), p.Collections...)
	p.Images = append([]string(nil), p.Images...)
	return p
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func anyContains(list []string, lowerSub string) bool {
	for _, v := range list {
		if strings.Contains(strings.ToLower(v), lowerSub) {
			return true
		}
	}
	return false
}
