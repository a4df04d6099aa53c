package pager

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/platform/memory"
	"storefront/internal/service/catalog"
)

type call struct {
	base   url.Values
	cursor string
}

type scriptedFetcher struct {
	mu      sync.Mutex
	pages   map[string]domain.ProductPage
	err     error
	gate    chan struct{}
	entered chan struct{}
	calls   []call
}

func (f *scriptedFetcher) FetchPage(_ context.Context, base url.Values, cursor string) (domain.ProductPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{base: base, cursor: cursor})
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return domain.ProductPage{}, f.err
	}
	return f.pages[cursor], nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func products(ids ...string) []domain.Product {
	out := make([]domain.Product, len(ids))
	for i, id := range ids {
		out[i] = domain.Product{ID: id, Handle: id}
	}
	return out
}

func page(cursor string, hasNext bool, ids ...string) domain.ProductPage {
	return domain.ProductPage{Products: products(ids...), PageInfo: domain.PageInfo{EndCursor: cursor, HasNextPage: hasNext}}
}

func ids(s State) []string {
	out := make([]string, len(s.Products))
	for i, p := range s.Products {
		out[i] = p.ID
	}
	return out
}

func TestFetchNextNoOpWithoutNextPage(t *testing.T) {
	f := &scriptedFetcher{}
	p := New(f, nil)
	p.Reset(nil, page("c1", false, "a"))

	ok, err := p.FetchNext(context.Background())
	if ok || err != nil || f.callCount() != 0 {
		t.Fatalf("expected no fetch, got ok=%v err=%v calls=%d", ok, err, f.callCount())
	}

	p.Reset(nil, page("", true, "a"))
	if ok, _ := p.FetchNext(context.Background()); ok || f.callCount() != 0 {
		t.Fatalf("expected no fetch with empty cursor")
	}
}

func TestFetchNextAppendsAndCarriesFilters(t *testing.T) {
	f := &scriptedFetcher{pages: map[string]domain.ProductPage{
		"c1": page("c2", true, "b", "c"),
		"c2": page("c3", false, "c", "d"),
	}}
	p := New(f, nil)
	params := url.Values{"q": {"leash"}, "b": {"acme", "globex"}, "cursor": {"stale"}, "t": {""}}
	p.Reset(params, page("c1", true, "a"))

	for i := 0; i < 3; i++ {
		if _, err := p.FetchNext(context.Background()); err != nil {
			t.Fatalf("FetchNext: %v", err)
		}
	}

	s := p.Snapshot()
	if got := fmt.Sprint(ids(s)); got != "[a b c d]" {
		t.Fatalf("unexpected products %s", got)
	}
	if s.PageInfo.HasNextPage || s.PageInfo.EndCursor != "c3" {
		t.Fatalf("unexpected page info %+v", s.PageInfo)
	}
	if f.callCount() != 2 {
		t.Fatalf("expected 2 fetches, got %d", f.callCount())
	}
	first := f.calls[0]
	if first.cursor != "c1" || first.base.Get("q") != "leash" || len(first.base["b"]) != 2 {
		t.Fatalf("unexpected call %+v", first)
	}
	if _, ok := first.base["cursor"]; ok {
		t.Fatalf("cursor must not leak into base params")
	}
	if _, ok := first.base["t"]; ok {
		t.Fatalf("empty params must be dropped")
	}
}

func TestFetchNextRejectsWhileInFlight(t *testing.T) {
	f := &scriptedFetcher{
		pages:   map[string]domain.ProductPage{"c1": page("c2", true, "b")},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	p := New(f, nil)
	p.Reset(nil, page("c1", true, "a"))

	done := make(chan bool)
	go func() {
		ok, _ := p.FetchNext(context.Background())
		done <- ok
	}()
	<-f.entered

	if !p.Snapshot().Fetching {
		t.Fatalf("expected fetching state")
	}
	if ok, err := p.FetchNext(context.Background()); ok || err != nil {
		t.Fatalf("expected concurrent call to be a no-op")
	}
	close(f.gate)
	if !<-done {
		t.Fatalf("expected first fetch to apply")
	}
	if f.callCount() != 1 {
		t.Fatalf("expected a single fetch, got %d", f.callCount())
	}
}

func TestResetDiscardsInFlightFetch(t *testing.T) {
	f := &scriptedFetcher{
		pages:   map[string]domain.ProductPage{"c1": page("c2", true, "stale")},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	p := New(f, nil)
	p.Reset(url.Values{"q": {"old"}}, page("c1", true, "a"))

	done := make(chan bool)
	go func() {
		ok, _ := p.FetchNext(context.Background())
		done <- ok
	}()
	<-f.entered

	p.Reset(url.Values{"q": {"new"}}, page("n1", false, "x"))
	close(f.gate)
	if <-done {
		t.Fatalf("expected stale fetch to be discarded")
	}

	s := p.Snapshot()
	if got := fmt.Sprint(ids(s)); got != "[x]" || s.PageInfo.EndCursor != "n1" || s.Fetching {
		t.Fatalf("unexpected state after reset %+v", s)
	}
}

func TestCloseDropsLateResults(t *testing.T) {
	f := &scriptedFetcher{
		pages:   map[string]domain.ProductPage{"c1": page("c2", true, "b")},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	p := New(f, nil)
	p.Reset(nil, page("c1", true, "a"))

	done := make(chan bool)
	go func() {
		ok, _ := p.FetchNext(context.Background())
		done <- ok
	}()
	<-f.entered
	p.Close()
	close(f.gate)
	if <-done {
		t.Fatalf("expected result dropped after close")
	}
	if got := fmt.Sprint(ids(p.Snapshot())); got != "[a]" {
		t.Fatalf("unexpected products %s", got)
	}
	if ok, _ := p.FetchNext(context.Background()); ok {
		t.Fatalf("closed pager must not fetch")
	}
}

func TestFailureLeavesState(t *testing.T) {
	boom := errors.New("status 500")
	f := &scriptedFetcher{err: boom}
	p := New(f, nil)
	p.Reset(nil, page("c1", true, "a"))

	ok, err := p.FetchNext(context.Background())
	if ok || !errors.Is(err, boom) {
		t.Fatalf("expected failure, got ok=%v err=%v", ok, err)
	}
	s := p.Snapshot()
	if len(s.Products) != 1 || s.PageInfo.EndCursor != "c1" || !s.PageInfo.HasNextPage || s.Fetching {
		t.Fatalf("state must be unchanged after failure, got %+v", s)
	}

	f.err = nil
	f.pages = map[string]domain.ProductPage{"c1": page("", false, "b")}
	if ok, err := p.FetchNext(context.Background()); !ok || err != nil {
		t.Fatalf("expected retry to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestTriggerCoalescesVisibility(t *testing.T) {
	f := &scriptedFetcher{
		pages:   map[string]domain.ProductPage{"c1": page("", false, "b")},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	p := New(f, nil)
	p.Reset(nil, page("c1", true, "a"))
	trig := NewTrigger(p)

	trig.Visible(context.Background())
	<-f.entered
	trig.Visible(context.Background())
	trig.Visible(context.Background())
	close(f.gate)
	trig.Wait()

	if f.callCount() != 1 {
		t.Fatalf("expected one fetch, got %d", f.callCount())
	}
	if got := fmt.Sprint(ids(p.Snapshot())); got != "[a b]" {
		t.Fatalf("unexpected products %s", got)
	}
}

func TestCatalogFetcherWalksAllPages(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCatalog("USD")
	for i := 0; i < 5; i++ {
		vendor := "Acme"
		if i%2 == 1 {
			vendor = "Globex"
		}
		if _, err := repo.Upsert(ctx, domain.Product{
			Handle:   fmt.Sprintf("p%d", i),
			Title:    fmt.Sprintf("Product %d", i),
			Vendor:   vendor,
			Variants: []domain.Variant{{SKU: fmt.Sprintf("s%d", i), Price: domain.MoneyFromCents(int64(100*(i+1)), "USD"), AvailableForSale: true}},
		}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if _, err := repo.UpsertCollection(ctx, domain.Collection{Handle: "sale", Title: "Sale"}, []string{"p0", "p1"}); err != nil {
		t.Fatalf("UpsertCollection: %v", err)
	}

	fetcher := CatalogFetcher{Catalog: catalog.New(repo, catalog.Options{PageSize: 2})}
	p := New(fetcher, nil)
	if err := p.Load(ctx, url.Values{"sort": {"price-asc"}}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for p.HasNext() {
		if _, err := p.FetchNext(ctx); err != nil {
			t.Fatalf("FetchNext: %v", err)
		}
	}
	s := p.Snapshot()
	if len(s.Products) != 5 || s.Products[0].Handle != "p0" || s.Products[4].Handle != "p4" {
		t.Fatalf("unexpected listing %v", ids(s))
	}

	if err := p.Load(ctx, url.Values{"b": {"globex"}}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for p.HasNext() {
		p.FetchNext(ctx)
	}
	if len(p.Snapshot().Products) != 2 {
		t.Fatalf("expected 2 globex products, got %d", len(p.Snapshot().Products))
	}

	first, err := FirstPage(ctx, fetcher, url.Values{"c": {"sale"}, "maxPrice": {"1.5"}})
	if err != nil {
		t.Fatalf("FirstPage: %v", err)
	}
	if len(first.Products) != 1 || first.Products[0].Handle != "p0" {
		t.Fatalf("unexpected collection page %+v", first.Products)
	}
}
