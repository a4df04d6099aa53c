// Package catalog is the Catalog Service: search and collection listings
// with opaque cursors.
package catalog

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/filter"
	"storefront/internal/logging"
	productrepo "storefront/internal/repository/product"
)

const DefaultPageSize = 20

type Service struct {
	repo     productrepo.Repository
	pageSize int
	logger   logrus.FieldLogger
}

type Options struct {
	PageSize int
	Logger   logrus.FieldLogger
}

func New(repo productrepo.Repository, opts Options) *Service {
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Service{repo: repo, pageSize: size, logger: logging.OrDiscard(opts.Logger)}
}

// ProductsQuery addresses the search entry point.
type ProductsQuery struct {
	Query   string
	SortKey domain.SortKey
	Reverse bool
	Cursor  string
	First   int
}

// CollectionQuery addresses the collection entry point.
type CollectionQuery struct {
	Collection string
	SortKey    domain.SortKey
	Reverse    bool
	Filters    []filter.CollectionFilter
	Cursor     string
	First      int
}

func (s *Service) ListProducts(ctx context.Context, q ProductsQuery) (domain.ProductPage, error) {
	return s.list(ctx, ParseQuery(q.Query), q.SortKey, q.Reverse, q.Cursor, q.First)
}

func (s *Service) ListCollectionProducts(ctx context.Context, q CollectionQuery) (domain.ProductPage, error) {
	handle := strings.TrimSpace(q.Collection)
	if handle == "" {
		return domain.ProductPage{}, domain.NewValidationError("collection", "required")
	}
	if _, err := s.repo.GetCollection(ctx, handle); err != nil {
		return domain.ProductPage{}, err
	}
	c := criteriaFromFilters(q.Filters)
	c.Collection = handle
	return s.list(ctx, c, q.SortKey, q.Reverse, q.Cursor, q.First)
}

func (s *Service) Collections(ctx context.Context) ([]domain.Collection, error) {
	return s.repo.ListCollections(ctx)
}

func (s *Service) Vendors(ctx context.Context) ([]string, error) {
	return s.repo.ListVendors(ctx)
}

func (s *Service) list(ctx context.Context, c productrepo.Criteria, key domain.SortKey, reverse bool, cursor string, first int) (domain.ProductPage, error) {
	if key == "" {
		key = domain.SortRelevance
	}
	offset, err := decodeCursor(cursor, key, reverse)
	if err != nil {
		return domain.ProductPage{}, err
	}
	if first <= 0 {
		first = s.pageSize
	}

	products, hasMore, err := s.repo.List(ctx, productrepo.ListInput{
		Criteria: c,
		SortKey:  key,
		Reverse:  reverse,
		Offset:   offset,
		Limit:    first,
	})
	if err != nil {
		return domain.ProductPage{}, err
	}
	if products == nil {
		products = []domain.Product{}
	}

	page := domain.ProductPage{
		Products: products,
		PageInfo: domain.PageInfo{
			HasNextPage:     hasMore,
			HasPreviousPage: offset > 0,
		},
	}
	if len(products) > 0 {
		page.PageInfo.EndCursor = encodeCursor(key, reverse, offset+len(products))
	}
	s.logger.WithFields(logrus.Fields{
		"sort":     key,
		"reverse":  reverse,
		"offset":   offset,
		"count":    len(products),
		"has_next": hasMore,
	}).Debug("catalog page")
	return page, nil
}

func criteriaFromFilters(filters []filter.CollectionFilter) productrepo.Criteria {
	var c productrepo.Criteria
	for _, f := range filters {
		switch {
		case f.Price != nil:
			c.MinPrice = f.Price.Min
			c.MaxPrice = f.Price.Max
		case f.ProductVendor != "":
			c.Vendors = append(c.Vendors, f.ProductVendor)
		case f.Tag != "":
			c.Tags = append(c.Tags, f.Tag)
		}
	}
	return c
}
