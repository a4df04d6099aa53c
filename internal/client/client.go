// Package client talks to the storefront HTTP API as a single shopper,
// keeping the cart cookie between calls.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront/internal/cartsession"
	"storefront/internal/domain"
	"storefront/internal/filter"
)

type Client struct {
	base       *url.URL
	httpClient *http.Client
	stream     *http.Client
}

// New returns a Client for the API at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "cookie jar")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := otelhttp.NewTransport(http.DefaultTransport)
	return &Client{
		base:       u,
		httpClient: &http.Client{Timeout: timeout, Jar: jar, Transport: transport},
		stream:     &http.Client{Jar: jar, Transport: transport},
	}, nil
}

// UseCart binds the client to an existing cart, as if its cookie had been
// set by an earlier response.
func (c *Client) UseCart(id string) {
	c.httpClient.Jar.SetCookies(c.base, []*http.Cookie{{Name: cartsession.CookieName, Value: id, Path: "/"}})
}

// CartID returns the cart identifier currently held in the cookie jar.
func (c *Client) CartID() string {
	for _, ck := range c.httpClient.Jar.Cookies(c.base) {
		if ck.Name == cartsession.CookieName {
			return ck.Value
		}
	}
	return ""
}

// Cart returns the shopper's cart, or nil when there is none.
func (c *Client) Cart(ctx context.Context) (*domain.Cart, error) {
	var out struct {
		Cart *domain.Cart `json:"cart"`
	}
	if err := c.getJSON(ctx, "/cart", nil, &out); err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return out.Cart, nil
}

// FetchPage loads a catalog page. It satisfies pager.Fetcher.
func (c *Client) FetchPage(ctx context.Context, base url.Values, cursor string) (domain.ProductPage, error) {
	q := url.Values{}
	for k, vs := range base {
		q[k] = append([]string(nil), vs...)
	}
	if cursor != "" {
		q.Set(filter.ParamCursor, cursor)
	}
	var page domain.ProductPage
	if err := c.getJSON(ctx, "/products", q, &page); err != nil {
		return domain.ProductPage{}, errors.Wrap(err, "fetch products")
	}
	if page.Products == nil {
		page.Products = []domain.Product{}
	}
	return page, nil
}

func (c *Client) Collections(ctx context.Context) ([]domain.Collection, error) {
	var out struct {
		Collections []domain.Collection `json:"collections"`
	}
	if err := c.getJSON(ctx, "/collections", nil, &out); err != nil {
		return nil, errors.Wrap(err, "get collections")
	}
	return out.Collections, nil
}

func (c *Client) Vendors(ctx context.Context) ([]string, error) {
	var out struct {
		Vendors []string `json:"vendors"`
	}
	if err := c.getJSON(ctx, "/vendors", nil, &out); err != nil {
		return nil, errors.Wrap(err, "get vendors")
	}
	return out.Vendors, nil
}

func (c *Client) AddItem(ctx context.Context, variantID string) cartsession.Result {
	return c.mutate(ctx, "/cart/add", url.Values{"variantId": {variantID}})
}

func (c *Client) RemoveItem(ctx context.Context, lineID string) cartsession.Result {
	return c.mutate(ctx, "/cart/remove", url.Values{"lineId": {lineID}})
}

func (c *Client) UpdateQuantity(ctx context.Context, lineID, variantID string, quantity int) cartsession.Result {
	return c.mutate(ctx, "/cart/update", url.Values{
		"lineId":    {lineID},
		"variantId": {variantID},
		"quantity":  {strconv.Itoa(quantity)},
	})
}

// Events streams the server's cart events, calling fn for each one until
// ctx is done or the stream ends.
func (c *Client) Events(ctx context.Context, fn func(event string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/cart/events", nil), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		return errors.Wrap(err, "open event stream")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("event stream: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case line == "":
			if event != "" {
				fn(event)
			}
			event = ""
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "read event stream")
	}
	return nil
}

func (c *Client) mutate(ctx context.Context, path string, form url.Values) cartsession.Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return cartsession.Result{Status: cartsession.StatusError, Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = errors.Wrapf(err, "post %s", path)
		return cartsession.Result{Status: cartsession.StatusError, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	var res cartsession.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		err = errors.Wrapf(err, "decode %s: status %d", path, resp.StatusCode)
		return cartsession.Result{Status: cartsession.StatusError, Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		res.Status = cartsession.StatusError
		res.Err = errors.Errorf("%s: status %d: %s", path, resp.StatusCode, res.Message)
	}
	return res
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path, q), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) url(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
