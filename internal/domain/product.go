package domain

import "time"

type Product struct {
	ID               string     `json:"id"`
	Handle           string     `json:"handle"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Vendor           string     `json:"vendor"`
	Tags             []string   `json:"tags"`
	AvailableForSale bool       `json:"availableForSale"`
	PriceRange       PriceRange `json:"priceRange"`
	Variants         []Variant  `json:"variants"`
	Collections      []string   `json:"collections,omitempty"`
	Images           []string   `json:"images,omitempty"`
	BestSellingRank  int        `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
}

type PriceRange struct {
	Min Money `json:"minVariantPrice"`
	Max Money `json:"maxVariantPrice"`
}

type Variant struct {
	ID               string `json:"id"`
	ProductID        string `json:"-"`
	Title            string `json:"title"`
	SKU              string `json:"sku,omitempty"`
	Price            Money  `json:"price"`
	AvailableForSale bool   `json:"availableForSale"`
}

type Collection struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

// PageInfo carries the opaque cursor of the last item in a page.
type PageInfo struct {
	EndCursor       string `json:"endCursor"`
	HasNextPage     bool   `json:"hasNextPage"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
}

// ProductPage is one page of catalog results.
type ProductPage struct {
	Products []Product `json:"products"`
	PageInfo PageInfo  `json:"pageInfo"`
}

// PriceRangeOf derives the min/max variant price.
func PriceRangeOf(variants []Variant, currency string) PriceRange {
	if len(variants) == 0 {
		return PriceRange{Min: Zero(currency), Max: Zero(currency)}
	}
	pr := PriceRange{Min: variants[0].Price, Max: variants[0].Price}
	for _, v := range variants[1:] {
		if v.Price.Amount.LessThan(pr.Min.Amount) {
			pr.Min = v.Price
		}
		if v.Price.Amount.GreaterThan(pr.Max.Amount) {
			pr.Max = v.Price
		}
	}
	return pr
}
