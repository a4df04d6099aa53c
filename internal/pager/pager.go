// Package pager accumulates catalog pages for an infinite-scroll listing.
package pager

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/filter"
	"storefront/internal/logging"
)

// Fetcher loads the catalog page that follows cursor for the given filters.
// An empty cursor means the first page.
type Fetcher interface {
	FetchPage(ctx context.Context, base url.Values, cursor string) (domain.ProductPage, error)
}

// State is a copy of the pager's accumulated listing.
type State struct {
	Products []domain.Product
	PageInfo domain.PageInfo
	Fetching bool
}

type Pager struct {
	fetcher Fetcher
	logger  logrus.FieldLogger

	mu       sync.Mutex
	base     url.Values
	items    []domain.Product
	seen     map[string]struct{}
	pageInfo domain.PageInfo
	fetching bool
	gen      uint64
	closed   bool
}

func New(fetcher Fetcher, logger logrus.FieldLogger) *Pager {
	return &Pager{fetcher: fetcher, logger: logging.OrDiscard(logger), seen: map[string]struct{}{}}
}

// FirstPage fetches page one for params. Any cursor in params is ignored.
func FirstPage(ctx context.Context, f Fetcher, params url.Values) (domain.ProductPage, error) {
	return f.FetchPage(ctx, baseParams(params), "")
}

// Load fetches page one for params and resets the pager to it.
func (p *Pager) Load(ctx context.Context, params url.Values) error {
	page, err := FirstPage(ctx, p.fetcher, params)
	if err != nil {
		p.logger.WithError(err).Error("error fetching products")
		return err
	}
	p.Reset(params, page)
	return nil
}

// Reset replaces the listing with first under new filters. A fetch still
// in flight from before the reset is discarded when it resolves.
func (p *Pager) Reset(params url.Values, first domain.ProductPage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.base = baseParams(params)
	p.items = p.items[:0:0]
	p.seen = make(map[string]struct{}, len(first.Products))
	p.appendLocked(first.Products)
	p.pageInfo = first.PageInfo
	p.fetching = false
}

// FetchNext loads the next page and appends it. It reports false without
// fetching when a fetch is already running, there is no next page, the
// cursor is empty, or the pager is closed. On failure the listing is left
// unchanged.
func (p *Pager) FetchNext(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.closed || p.fetching || !p.pageInfo.HasNextPage || p.pageInfo.EndCursor == "" {
		p.mu.Unlock()
		return false, nil
	}
	p.fetching = true
	gen := p.gen
	base := cloneValues(p.base)
	cursor := p.pageInfo.EndCursor
	p.mu.Unlock()

	page, err := p.fetcher.FetchPage(ctx, base, cursor)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return false, nil
	}
	p.fetching = false
	if p.closed {
		return false, nil
	}
	if err != nil {
		p.logger.WithError(err).WithField("cursor", cursor).Error("error fetching more products")
		return false, err
	}
	p.appendLocked(page.Products)
	p.pageInfo = page.PageInfo
	return true, nil
}

// Close stops the pager. Results of fetches resolving afterwards are dropped.
func (p *Pager) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Pager) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Products: append([]domain.Product(nil), p.items...),
		PageInfo: p.pageInfo,
		Fetching: p.fetching,
	}
}

func (p *Pager) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageInfo.HasNextPage && p.pageInfo.EndCursor != ""
}

func (p *Pager) appendLocked(products []domain.Product) {
	for _, prod := range products {
		if prod.ID != "" {
			if _, dup := p.seen[prod.ID]; dup {
				continue
			}
			p.seen[prod.ID] = struct{}{}
		}
		p.items = append(p.items, prod)
	}
}

func baseParams(params url.Values) url.Values {
	out := url.Values{}
	for k, vs := range params {
		if k == filter.ParamCursor {
			continue
		}
		for _, v := range vs {
			if v != "" {
				out.Add(k, v)
			}
		}
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
