package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"storefront/internal/cartsession"
	"storefront/internal/domain"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestCart_KeepsCookieBetweenCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cart/add", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("variantId"); got != "v1" {
			t.Errorf("variantId = %q", got)
		}
		http.SetCookie(w, &http.Cookie{Name: cartsession.CookieName, Value: "c1", Path: "/"})
		_ = json.NewEncoder(w).Encode(cartsession.Result{Status: cartsession.StatusSuccess})
	})
	mux.HandleFunc("/cart", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(cartsession.CookieName)
		if err != nil {
			_, _ = w.Write([]byte(`{"cart":null}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"cart": domain.Cart{ID: ck.Value, TotalQuantity: 1},
		})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	cart, err := c.Cart(ctx)
	if err != nil {
		t.Fatalf("cart: %v", err)
	}
	if cart != nil {
		t.Fatalf("expected no cart before add, got %+v", cart)
	}

	res := c.AddItem(ctx, "v1")
	if !res.OK() {
		t.Fatalf("add: %+v", res)
	}
	cart, err = c.Cart(ctx)
	if err != nil {
		t.Fatalf("cart: %v", err)
	}
	if cart == nil || cart.ID != "c1" || cart.TotalQuantity != 1 {
		t.Fatalf("unexpected cart %+v", cart)
	}
}

func TestMutate_ErrorStatusCarriesMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(cartsession.Result{Status: cartsession.StatusError, Message: "Missing line ID"})
	}))

	res := c.RemoveItem(context.Background(), "")
	if res.OK() {
		t.Fatalf("expected error result")
	}
	if res.Message != "Missing line ID" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.Err == nil {
		t.Fatalf("expected Err to be set")
	}
}

func TestMutate_UndecodableBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))

	res := c.UpdateQuantity(context.Background(), "l1", "v1", 2)
	if res.Status != cartsession.StatusError || res.Err == nil {
		t.Fatalf("expected error result, got %+v", res)
	}
}

func TestFetchPage_SendsCursorAndFilters(t *testing.T) {
	var seen url.Values
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products" {
			http.NotFound(w, r)
			return
		}
		seen = r.URL.Query()
		_, _ = w.Write([]byte(`{"products":null,"pageInfo":{"endCursor":"","hasNextPage":false,"hasPreviousPage":true}}`))
	}))

	base := url.Values{"q": {"shirt"}, "b": {"Acme", "Globex"}}
	page, err := c.FetchPage(context.Background(), base, "abc")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.Products == nil || len(page.Products) != 0 {
		t.Fatalf("expected empty non-nil products, got %#v", page.Products)
	}
	if seen.Get("cursor") != "abc" || seen.Get("q") != "shirt" || len(seen["b"]) != 2 {
		t.Fatalf("unexpected query %v", seen)
	}
	if base.Get("cursor") != "" {
		t.Fatalf("base params mutated: %v", base)
	}
}

func TestFetchPage_StatusError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid cursor"}`, http.StatusBadRequest)
	}))
	if _, err := c.FetchPage(context.Background(), nil, "bad"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEvents_DeliversNamedEvents(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": connected\n\n")
		fmt.Fprint(w, "event: cart:changed\ndata: {}\n\n")
		fmt.Fprint(w, "event: cart:changed\ndata: {}\n\n")
	}))

	var got []string
	if err := c.Events(context.Background(), func(e string) { got = append(got, e) }); err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(got) != 2 || got[0] != "cart:changed" {
		t.Fatalf("events = %v", got)
	}
}

func TestUseCartSendsCookie(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie(cartsession.CookieName); err == nil {
			got = ck.Value
		}
		_, _ = w.Write([]byte(`{"cart":null}`))
	}))

	c.UseCart("existing")
	if _, err := c.Cart(context.Background()); err != nil {
		t.Fatalf("cart: %v", err)
	}
	if got != "existing" || c.CartID() != "existing" {
		t.Fatalf("cookie = %q, jar = %q", got, c.CartID())
	}
}
