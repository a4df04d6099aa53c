package cartsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/platform/memory"
	cartsvc "storefront/internal/service/cart"
)

type memSession struct {
	id   string
	sets int
}

func (s *memSession) CartID() string { return s.id }

func (s *memSession) SetCartID(id string) {
	s.id = id
	s.sets++
}

func newCartService(t *testing.T) *cartsvc.Service {
	t.Helper()
	catalog := memory.NewCatalog("USD")
	if _, err := catalog.Upsert(context.Background(), domain.Product{
		Handle: "red-leash",
		Title:  "Red Leash",
		Variants: []domain.Variant{
			{ID: "V1", Title: "S", Price: domain.MoneyFromCents(2500, "USD"), AvailableForSale: true},
			{ID: "V2", Title: "L", Price: domain.MoneyFromCents(3000, "USD"), AvailableForSale: true},
		},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return cartsvc.New(memory.NewCarts(catalog), catalog, cartsvc.Options{Currency: "USD"})
}

func newGateway(t *testing.T) (*Gateway, *cache.Tagged[*domain.Cart]) {
	t.Helper()
	c := cache.NewTagged[*domain.Cart](16, time.Minute)
	return NewGateway(newCartService(t), c, nil), c
}

func TestAddItemWithoutCookieCreatesCart(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()
	s := &memSession{}

	res := g.AddItem(ctx, s, "V1")
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	if s.id == "" {
		t.Fatalf("expected cart cookie to be set")
	}

	cart, err := g.Cart(ctx, s)
	if err != nil {
		t.Fatalf("Cart: %v", err)
	}
	if cart == nil || len(cart.Lines) != 1 || cart.Lines[0].MerchandiseID != "V1" || cart.Lines[0].Quantity != 1 {
		t.Fatalf("unexpected cart %+v", cart)
	}
	if cart.TotalQuantity != 1 || cart.Cost.Total.Amount.String() != "25" {
		t.Fatalf("unexpected totals %+v", cart.Cost)
	}
}

func TestAddItemTwiceMergesIntoOneLine(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()
	s := &memSession{}

	if res := g.AddItem(ctx, s, "V1"); !res.OK() {
		t.Fatalf("first add: %+v", res)
	}
	firstID := s.id
	if res := g.AddItem(ctx, s, "V1"); !res.OK() {
		t.Fatalf("second add: %+v", res)
	}
	if s.id != firstID {
		t.Fatalf("expected the same cart, got %s then %s", firstID, s.id)
	}

	cart, _ := g.Cart(ctx, s)
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 2 || cart.TotalQuantity != 2 {
		t.Fatalf("expected one line with quantity 2, got %+v", cart.Lines)
	}
}

func TestEnsureCartReplacesStaleCookie(t *testing.T) {
	g, _ := newGateway(t)
	s := &memSession{id: "gone"}

	id, cart, err := g.EnsureCart(context.Background(), s)
	if err != nil {
		t.Fatalf("EnsureCart: %v", err)
	}
	if id == "gone" || cart.ID != id || s.id != id {
		t.Fatalf("expected a fresh cart, got id=%s session=%s", id, s.id)
	}

	again, _, err := g.EnsureCart(context.Background(), s)
	if err != nil || again != id {
		t.Fatalf("expected reuse, got %s %v", again, err)
	}
	if s.sets != 2 {
		t.Fatalf("expected cookie refreshed on reuse, got %d writes", s.sets)
	}
}

func TestUpdateQuantityZeroRemovesLine(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()
	s := &memSession{}
	g.AddItem(ctx, s, "V1")
	g.AddItem(ctx, s, "V2")
	cart, _ := g.Cart(ctx, s)
	line, ok := cart.LineFor("V1")
	if !ok {
		t.Fatalf("expected V1 line")
	}

	if res := g.UpdateQuantity(ctx, s, line.ID, "V1", 3); !res.OK() {
		t.Fatalf("update: %+v", res)
	}
	cart, _ = g.Cart(ctx, s)
	if l, _ := cart.LineFor("V1"); l.Quantity != 3 || cart.TotalQuantity != 4 {
		t.Fatalf("unexpected cart after update %+v", cart.Lines)
	}

	if res := g.UpdateQuantity(ctx, s, line.ID, "V1", 0); !res.OK() {
		t.Fatalf("update to zero: %+v", res)
	}
	cart, _ = g.Cart(ctx, s)
	if _, ok := cart.LineFor("V1"); ok || len(cart.Lines) != 1 {
		t.Fatalf("expected V1 removed, got %+v", cart.Lines)
	}
}

func TestRemoveItem(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()
	s := &memSession{}
	g.AddItem(ctx, s, "V1")
	cart, _ := g.Cart(ctx, s)

	if res := g.RemoveItem(ctx, s, cart.Lines[0].ID); !res.OK() {
		t.Fatalf("remove: %+v", res)
	}
	cart, _ = g.Cart(ctx, s)
	if len(cart.Lines) != 0 || cart.TotalQuantity != 0 {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}

func TestValidationFailures(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		run     func() Result
		message string
	}{
		{"add without variant", func() Result { return g.AddItem(ctx, &memSession{}, " ") }, "Missing product variant ID"},
		{"remove without line", func() Result { return g.RemoveItem(ctx, &memSession{id: "c"}, "") }, "Missing line ID"},
		{"remove without cart", func() Result { return g.RemoveItem(ctx, &memSession{}, "l1") }, "Missing cart ID"},
		{"update without variant", func() Result { return g.UpdateQuantity(ctx, &memSession{id: "c"}, "l1", "", 1) }, "Missing required fields"},
		{"update without cart", func() Result { return g.UpdateQuantity(ctx, &memSession{}, "l1", "V1", 1) }, "Missing cart ID"},
		{"negative quantity", func() Result { return g.UpdateQuantity(ctx, &memSession{id: "c"}, "l1", "V1", -1) }, "Quantity must not be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := tc.run()
			if res.Status != StatusError || res.Message != tc.message {
				t.Fatalf("unexpected result %+v", res)
			}
			if !domain.IsValidation(res.Err) {
				t.Fatalf("expected validation error, got %v", res.Err)
			}
		})
	}
}

func TestAddUnknownVariantIsValidation(t *testing.T) {
	g, _ := newGateway(t)
	res := g.AddItem(context.Background(), &memSession{}, "V404")
	if res.Status != StatusError || !domain.IsValidation(res.Err) {
		t.Fatalf("expected validation failure, got %+v", res)
	}
}

type failingCarts struct {
	CartService
	getErr    error
	createErr error
	mutateErr error
	cart      *domain.Cart
}

func (f *failingCarts) Create(context.Context) (*domain.Cart, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &domain.Cart{ID: "new"}, nil
}

func (f *failingCarts) Get(context.Context, string) (*domain.Cart, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.cart, nil
}

func (f *failingCarts) AddLines(context.Context, string, []domain.LineInput) (*domain.Cart, error) {
	return nil, f.mutateErr
}

func (f *failingCarts) RemoveLines(context.Context, string, []string) (*domain.Cart, error) {
	return nil, f.mutateErr
}

func TestRemoteFailuresDoNotInvalidate(t *testing.T) {
	boom := errors.New("platform unavailable")
	svc := &failingCarts{cart: &domain.Cart{ID: "c1"}, mutateErr: boom}
	c := cache.NewTagged[*domain.Cart](16, time.Minute)
	g := NewGateway(svc, c, nil)
	ctx := context.Background()
	s := &memSession{id: "c1"}

	if _, err := g.Cart(ctx, s); err != nil {
		t.Fatalf("Cart: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected cached cart")
	}

	res := g.AddItem(ctx, s, "V1")
	if res.Status != StatusError || res.Message != "Error adding item to cart" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !domain.IsRemote(res.Err) || !errors.Is(res.Err, boom) {
		t.Fatalf("expected remote error wrapping cause, got %v", res.Err)
	}
	if res := g.RemoveItem(ctx, s, "l1"); res.Message != "Error removing item from cart" {
		t.Fatalf("unexpected remove result %+v", res)
	}
	if res := g.UpdateQuantity(ctx, s, "l1", "V1", 0); res.Message != "Error updating item quantity" {
		t.Fatalf("unexpected update result %+v", res)
	}
	if c.Len() != 1 {
		t.Fatalf("failed mutations must not invalidate the cache")
	}
}

func TestEnsureCartRemoteErrors(t *testing.T) {
	boom := errors.New("timeout")
	g := NewGateway(&failingCarts{getErr: boom}, nil, nil)
	if _, _, err := g.EnsureCart(context.Background(), &memSession{id: "c1"}); !domain.IsRemote(err) {
		t.Fatalf("expected remote error on lookup, got %v", err)
	}

	s := &memSession{}
	g = NewGateway(&failingCarts{createErr: boom}, nil, nil)
	if _, _, err := g.EnsureCart(context.Background(), s); !domain.IsRemote(err) {
		t.Fatalf("expected remote error on create, got %v", err)
	}
	if s.sets != 0 {
		t.Fatalf("cookie must not be written when creation fails")
	}
}

func TestCartReads(t *testing.T) {
	g, c := newGateway(t)
	ctx := context.Background()

	if cart, err := g.Cart(ctx, &memSession{}); cart != nil || err != nil {
		t.Fatalf("expected nil cart without cookie, got %+v %v", cart, err)
	}
	if cart, err := g.Cart(ctx, &memSession{id: "gone"}); cart != nil || err != nil {
		t.Fatalf("expected nil cart for unknown id, got %+v %v", cart, err)
	}

	s := &memSession{}
	g.AddItem(ctx, s, "V1")
	first, _ := g.Cart(ctx, s)
	if c.Len() != 1 {
		t.Fatalf("expected read to be cached")
	}
	g.AddItem(ctx, s, "V2")
	if c.Len() != 0 {
		t.Fatalf("expected mutation to invalidate the cart tag")
	}
	second, _ := g.Cart(ctx, s)
	if first.TotalQuantity != 1 || second.TotalQuantity != 2 {
		t.Fatalf("expected fresh read after mutation, got %d then %d", first.TotalQuantity, second.TotalQuantity)
	}
}

// blockingCarts parks the first Get after it has read the cart until
// release is closed.
type blockingCarts struct {
	CartService
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (b *blockingCarts) Get(ctx context.Context, id string) (*domain.Cart, error) {
	cart, err := b.CartService.Get(ctx, id)
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.read)
		<-b.release
	}
	return cart, err
}

func TestReadRacingMutationIsNotCached(t *testing.T) {
	svc := newCartService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	carts := &blockingCarts{CartService: svc, read: make(chan struct{}), release: make(chan struct{})}
	g := NewGateway(carts, cache.NewTagged[*domain.Cart](16, time.Minute), nil)
	s := &memSession{id: created.ID}

	stale := make(chan *domain.Cart)
	go func() {
		cart, _ := g.Cart(ctx, &memSession{id: created.ID})
		stale <- cart
	}()
	<-carts.read

	if res := g.AddItem(ctx, s, "V1"); !res.OK() {
		t.Fatalf("add: %+v", res)
	}
	close(carts.release)
	if cart := <-stale; cart == nil {
		t.Fatalf("racing read should still return a cart")
	}

	cart, err := g.Cart(ctx, s)
	if err != nil {
		t.Fatalf("Cart: %v", err)
	}
	if cart.TotalQuantity != 1 {
		t.Fatalf("read after a successful add must reflect it, got quantity %d", cart.TotalQuantity)
	}
}
