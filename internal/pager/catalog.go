package pager

import (
	"context"
	"net/url"

	"storefront/internal/domain"
	"storefront/internal/filter"
	"storefront/internal/service/catalog"
)

// CatalogService is the subset of the Catalog Service used for browsing.
type CatalogService interface {
	ListProducts(ctx context.Context, q catalog.ProductsQuery) (domain.ProductPage, error)
	ListCollectionProducts(ctx context.Context, q catalog.CollectionQuery) (domain.ProductPage, error)
}

// CatalogFetcher compiles URL filters and routes them to the search or the
// collection entry point.
type CatalogFetcher struct {
	Catalog CatalogService
	First   int
}

func (f CatalogFetcher) FetchPage(ctx context.Context, base url.Values, cursor string) (domain.ProductPage, error) {
	set := filter.Extract(base)
	sort := domain.LookupSort(base.Get(filter.ParamSort))

	if set.IsCollection() {
		return f.Catalog.ListCollectionProducts(ctx, catalog.CollectionQuery{
			Collection: set.Category,
			SortKey:    sort.Key,
			Reverse:    sort.Reverse,
			Filters:    filter.CollectionFilters(set),
			Cursor:     cursor,
			First:      f.First,
		})
	}
	return f.Catalog.ListProducts(ctx, catalog.ProductsQuery{
		Query:   filter.Build(set),
		SortKey: sort.Key,
		Reverse: sort.Reverse,
		Cursor:  cursor,
		First:   f.First,
	})
}
