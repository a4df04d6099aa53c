package domain

// SortKey names a Catalog Service sort order.
type SortKey string

const (
	SortRelevance   SortKey = "RELEVANCE"
	SortBestSelling SortKey = "BEST_SELLING"
	SortCreatedAt   SortKey = "CREATED_AT"
	SortPrice       SortKey = "PRICE"
	SortTitle       SortKey = "TITLE"
)

// Sort is a selectable sort option identified by its URL slug.
type Sort struct {
	Title   string  `json:"title"`
	Slug    string  `json:"slug"`
	Key     SortKey `json:"sortKey"`
	Reverse bool    `json:"reverse"`
}

// DefaultSort applies when no sort slug is recognized.
var DefaultSort = Sort{Title: "Relevance", Slug: "", Key: SortRelevance, Reverse: false}

var Sorting = []Sort{
	DefaultSort,
	{Title: "Trending", Slug: "trending-desc", Key: SortBestSelling, Reverse: false},
	{Title: "Latest arrivals", Slug: "latest-desc", Key: SortCreatedAt, Reverse: true},
	{Title: "Price: Low to high", Slug: "price-asc", Key: SortPrice, Reverse: false},
	{Title: "Price: High to low", Slug: "price-desc", Key: SortPrice, Reverse: true},
}

// LookupSort resolves a slug, falling back to DefaultSort.
func LookupSort(slug string) Sort {
	if slug == "" {
		return DefaultSort
	}
	for _, s := range Sorting {
		if s.Slug == slug {
			return s
		}
	}
	return DefaultSort
}
