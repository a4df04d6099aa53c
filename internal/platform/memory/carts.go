package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/domain"
	cartrepo "storefront/internal/repository/cart"
)

type cartRecord struct {
	id        string
	currency  string
	lines     []lineRecord
	createdAt time.Time
}

type lineRecord struct {
	id        string
	variant   domain.Variant
	quantity  int
	createdAt time.Time
}

// Carts stores carts in process. Merchandise snapshots are resolved
// against the catalog on read.
type Carts struct {
	mu      sync.Mutex
	catalog *Catalog
	carts   map[string]*cartRecord
	now     func() time.Time
}

var _ cartrepo.Repository = (*Carts)(nil)

func NewCarts(catalog *Catalog) *Carts {
	return &Carts{catalog: catalog, carts: make(map[string]*cartRecord), now: time.Now}
}

func (r *Carts) Create(_ context.Context, currency string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &cartRecord{id: uuid.NewString(), currency: currency, createdAt: r.now()}
	r.carts[rec.id] = rec
	return &domain.Cart{ID: rec.id, Lines: []domain.CartLine{}, CreatedAt: rec.createdAt}, nil
}

func (r *Carts) GetByID(_ context.Context, id string) (*domain.Cart, error) {
	r.mu.Lock()
	rec, ok := r.carts[id]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	cart := &domain.Cart{ID: rec.id, Lines: make([]domain.CartLine, 0, len(rec.lines)), CreatedAt: rec.createdAt}
	lines := append([]lineRecord(nil), rec.lines...)
	currency := rec.currency
	r.mu.Unlock()

	for _, l := range lines {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:            l.id,
			MerchandiseID: l.variant.ID,
			Quantity:      l.quantity,
			Cost: domain.LineCost{
				AmountPerQuantity: domain.Money{Amount: l.variant.Price.Amount, CurrencyCode: currency},
			},
			Merchandise: r.merchandise(l.variant),
			CreatedAt:   l.createdAt,
		})
	}
	return cart, nil
}

func (r *Carts) AddLine(_ context.Context, cartID string, variant domain.Variant, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.carts[cartID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range rec.lines {
		if rec.lines[i].variant.ID == variant.ID {
			rec.lines[i].quantity += quantity
			return nil
		}
	}
	rec.lines = append(rec.lines, lineRecord{
		id:        uuid.NewString(),
		variant:   variant,
		quantity:  quantity,
		createdAt: r.now(),
	})
	return nil
}

func (r *Carts) RemoveLines(_ context.Context, cartID string, lineIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.carts[cartID]
	if !ok {
		return domain.ErrNotFound
	}
	drop := make(map[string]bool, len(lineIDs))
	for _, id := range lineIDs {
		drop[id] = false
	}
	kept := rec.lines[:0:0]
	for _, l := range rec.lines {
		if _, ok := drop[l.id]; ok {
			drop[l.id] = true
			continue
		}
		kept = append(kept, l)
	}
	for _, found := range drop {
		if !found {
			return domain.ErrNotFound
		}
	}
	rec.lines = kept
	return nil
}

func (r *Carts) SetLineQuantity(_ context.Context, cartID, lineID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.carts[cartID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range rec.lines {
		if rec.lines[i].id != lineID {
			continue
		}
		if quantity <= 0 {
			rec.lines = append(rec.lines[:i:i], rec.lines[i+1:]...)
		} else {
			rec.lines[i].quantity = quantity
		}
		return nil
	}
	return domain.ErrNotFound
}

func (r *Carts) merchandise(v domain.Variant) domain.Merchandise {
	m := domain.Merchandise{ProductID: v.ProductID, VariantTitle: v.Title}
	if r.catalog == nil {
		return m
	}
	r.catalog.mu.RLock()
	defer r.catalog.mu.RUnlock()
	if p, ok := r.catalog.products[v.ProductID]; ok {
		m.ProductHandle = p.Handle
		m.ProductTitle = p.Title
	}
	return m
}
