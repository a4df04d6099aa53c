package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/bridge"
	"storefront/internal/cache"
	"storefront/internal/cartsession"
	"storefront/internal/client"
	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/platform/memory"
	cartsvc "storefront/internal/service/cart"
	catalogsvc "storefront/internal/service/catalog"
	customersvc "storefront/internal/service/customer"
)

type testEnv struct {
	router   *gin.Engine
	deps     Deps
	signal   *bridge.Signal
	variants map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	products := memory.NewCatalog("USD")
	variants := map[string]string{}
	for i, p := range []domain.Product{
		{Handle: "red-leash", Title: "Red Leash", Vendor: "Acme", Tags: []string{"dog"}},
		{Handle: "blue-leash", Title: "Blue Leash", Vendor: "Acme", Tags: []string{"dog"}},
		{Handle: "cat-tree", Title: "Cat Tree", Vendor: "Globex", Tags: []string{"cat"}},
	} {
		p.Variants = []domain.Variant{{SKU: p.Handle, Title: "Default", Price: domain.MoneyFromCents(int64(1000*(i+1)), "USD"), AvailableForSale: true}}
		stored, err := products.Upsert(ctx, p)
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		variants[p.Handle] = stored.Variants[0].ID
	}
	if _, err := products.UpsertCollection(ctx, domain.Collection{Handle: "dogs", Title: "Dogs"}, []string{"red-leash", "blue-leash"}); err != nil {
		t.Fatalf("upsert collection: %v", err)
	}

	carts := cartsvc.New(memory.NewCarts(products), products, cartsvc.Options{Currency: "USD"})
	sig := bridge.NewSignal()
	deps := Deps{
		Gateway:     cartsession.NewGateway(carts, cache.NewTagged[*domain.Cart](16, time.Minute), nil),
		Catalog:     catalogsvc.New(products, catalogsvc.Options{PageSize: 2}),
		CustomerSvc: customersvc.New(memory.NewCustomers(), memory.NewSessions(), nil),
		Signal:      sig,
	}
	router, err := buildRouter(logging.Discard(), nil, deps)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return &testEnv{router: router, deps: deps, signal: sig, variants: variants}
}

func (e *testEnv) do(method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) *domain.Cart {
	t.Helper()
	var out struct {
		Cart *domain.Cart `json:"cart"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode cart: %v body=%s", err, rec.Body.String())
	}
	return out.Cart
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestCartAddSetsCookieAndBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	ch, unsubscribe := env.signal.Subscribe()
	defer unsubscribe()

	rec := env.do(http.MethodPost, "/cart/add", url.Values{"variantId": {env.variants["red-leash"]}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"success"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	ck := responseCookie(rec, cartsession.CookieName)
	if ck == nil || ck.Value == "" || !ck.HttpOnly {
		t.Fatalf("expected httpOnly cart cookie, got %+v", ck)
	}
	select {
	case <-ch:
	default:
		t.Fatalf("expected cart:changed broadcast")
	}

	rec = env.do(http.MethodGet, "/cart", nil, ck)
	cart := decodeCart(t, rec)
	if cart == nil || cart.TotalQuantity != 1 || cart.Cost.Total.Amount.String() != "10" {
		t.Fatalf("unexpected cart %+v", cart)
	}
}

func TestCartWithoutCookieIsNull(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/cart", nil)
	if rec.Code != http.StatusOK || decodeCart(t, rec) != nil {
		t.Fatalf("expected null cart, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCartValidationFailures(t *testing.T) {
	env := newTestEnv(t)
	ch, unsubscribe := env.signal.Subscribe()
	defer unsubscribe()

	cases := []struct {
		path    string
		form    url.Values
		message string
	}{
		{"/cart/add", url.Values{"variantId": {""}}, "Missing product variant ID"},
		{"/cart/remove", url.Values{"lineId": {""}}, "Missing line ID"},
		{"/cart/remove", url.Values{"lineId": {"l1"}}, "Missing cart ID"},
		{"/cart/update", url.Values{"lineId": {"l1"}}, "Missing required fields"},
	}
	for _, tc := range cases {
		rec := env.do(http.MethodPost, tc.path, tc.form)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.path, rec.Code)
		}
		var res cartsession.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.Status != cartsession.StatusError || res.Message != tc.message {
			t.Fatalf("%s: unexpected result %+v", tc.path, res)
		}
	}
	select {
	case <-ch:
		t.Fatalf("failed mutations must not broadcast")
	default:
	}
}

func TestCartUpdateNonNumericQuantityRemovesLine(t *testing.T) {
	env := newTestEnv(t)
	variant := env.variants["blue-leash"]
	rec := env.do(http.MethodPost, "/cart/add", url.Values{"variantId": {variant}})
	ck := responseCookie(rec, cartsession.CookieName)
	cart := decodeCart(t, env.do(http.MethodGet, "/cart", nil, ck))
	if cart == nil || len(cart.Lines) != 1 {
		t.Fatalf("expected one line, got %+v", cart)
	}

	rec = env.do(http.MethodPost, "/cart/update", url.Values{
		"lineId":    {cart.Lines[0].ID},
		"variantId": {variant},
		"quantity":  {"lots"},
	}, ck)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	cart = decodeCart(t, env.do(http.MethodGet, "/cart", nil, ck))
	if cart == nil || len(cart.Lines) != 0 || cart.TotalQuantity != 0 {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}

type failingGateway struct{}

func (failingGateway) AddItem(context.Context, cartsession.Session, string) cartsession.Result {
	return cartsession.Result{Status: cartsession.StatusError, Message: "Error adding item to cart", Err: &domain.RemoteError{Op: "addToCart", Err: errors.New("boom")}}
}

func (failingGateway) RemoveItem(context.Context, cartsession.Session, string) cartsession.Result {
	return cartsession.Result{Status: cartsession.StatusError, Message: "Error removing item from cart", Err: errors.New("boom")}
}

func (failingGateway) UpdateQuantity(context.Context, cartsession.Session, string, string, int) cartsession.Result {
	return cartsession.Result{Status: cartsession.StatusError, Message: "Error updating item quantity", Err: errors.New("boom")}
}

func (failingGateway) Cart(context.Context, cartsession.Session) (*domain.Cart, error) {
	return nil, &domain.RemoteError{Op: "getCart", Err: errors.New("boom")}
}

func TestCartRemoteFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, err := buildRouter(logging.Discard(), nil, Deps{Gateway: failingGateway{}, Signal: bridge.NewSignal()})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/cart/add", strings.NewReader("variantId=v1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Error adding item to cart") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestProductsPagesWithCursor(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/products?sort=price-asc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var page domain.ProductPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Products) != 2 || !page.PageInfo.HasNextPage {
		t.Fatalf("unexpected first page %+v", page.PageInfo)
	}

	rec = env.do(http.MethodGet, "/products?sort=price-asc&cursor="+url.QueryEscape(page.PageInfo.EndCursor), nil)
	var next domain.ProductPage
	if err := json.Unmarshal(rec.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(next.Products) != 1 || next.Products[0].Handle != "cat-tree" || next.PageInfo.HasNextPage {
		t.Fatalf("unexpected second page %+v", next)
	}

	// A cursor minted for another sort order is rejected.
	rec = env.do(http.MethodGet, "/products?sort=price-desc&cursor="+url.QueryEscape(page.PageInfo.EndCursor), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestProductsCategoryUsesCollection(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/products?c=dogs&maxPrice=15", nil)
	var page domain.ProductPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Products) != 1 || page.Products[0].Handle != "red-leash" {
		t.Fatalf("unexpected products %+v", page.Products)
	}

	rec = env.do(http.MethodGet, "/products?c=birds", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFacetRoutes(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/vendors", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Globex"`) {
		t.Fatalf("unexpected vendors %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(http.MethodGet, "/collections", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"handle":"dogs"`) {
		t.Fatalf("unexpected collections %d %s", rec.Code, rec.Body.String())
	}
}

func TestEventsStreamDeliversBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	c, err := client.New(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 1)
	go func() {
		_ = c.Events(ctx, func(e string) {
			select {
			case got <- e:
			default:
			}
			cancel()
		})
	}()

	waitForListeners(t, env.signal)

	if res := c.AddItem(context.Background(), env.variants["cat-tree"]); !res.OK() {
		t.Fatalf("add: %+v", res)
	}
	select {
	case e := <-got:
		if e != bridge.EventCartChanged {
			t.Fatalf("unexpected event %q", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no event received")
	}
}

func waitForListeners(t *testing.T, sig *bridge.Signal) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for sig.Listeners() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("event stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestShutdownEndsOpenEventStreams(t *testing.T) {
	env := newTestEnv(t)
	srv, err := New("", logging.Discard(), nil, env.deps, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewUnstartedServer(srv.httpServer.Handler)
	ts.Config = srv.httpServer
	ts.Start()
	defer ts.Close()

	c, err := client.New(ts.URL, time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	streamDone := make(chan struct{})
	go func() {
		_ = c.Events(context.Background(), func(string) {})
		close(streamDone)
	}()
	waitForListeners(t, env.signal)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("shutdown waited %v on an idle event stream", elapsed)
	}
	select {
	case <-streamDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("client stream still open after shutdown")
	}
}
