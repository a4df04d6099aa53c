// Package filter compiles URL-style catalog parameters into a canonical
// filter set and a single Catalog Service search query.
package filter

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// URL parameter names.
const (
	ParamSearch   = "q"
	ParamMinPrice = "minPrice"
	ParamMaxPrice = "maxPrice"
	ParamBrand    = "b"
	ParamCategory = "c"
	ParamTag      = "t"
	ParamSort     = "sort"
	ParamCursor   = "cursor"
)

// AllCategories is the category value meaning "no category filter".
const AllCategories = "all"

// Set is the normalized filter record. Zero values mean absent.
type Set struct {
	SearchValue string
	MinPrice    string
	MaxPrice    string
	Brands      []string
	Category    string
	Tag         string
}

// Extract builds a Set from query parameters. Scalar keys take their first
// non-empty value, brand keeps every value. Price bounds that do not parse as
// numbers are dropped.
func Extract(params url.Values) Set {
	s := Set{
		SearchValue: first(params, ParamSearch),
		MinPrice:    price(first(params, ParamMinPrice)),
		MaxPrice:    price(first(params, ParamMaxPrice)),
		Category:    first(params, ParamCategory),
		Tag:         first(params, ParamTag),
	}
	for _, b := range params[ParamBrand] {
		if b = strings.TrimSpace(b); b != "" {
			s.Brands = append(s.Brands, b)
		}
	}
	return s
}

// ExtractMap is Extract for a flat key/value record.
func ExtractMap(params map[string]string) Set {
	v := make(url.Values, len(params))
	for k, val := range params {
		v.Set(k, val)
	}
	return Extract(v)
}

// Build compiles s into the search query string. The output is byte-identical
// for equal sets: max price, min price, search text, vendor, tag.
// Category is not part of the query; see IsCollection.
func Build(s Set) string {
	var terms []string
	if s.MaxPrice != "" {
		terms = append(terms, "variants.price:<="+s.MaxPrice)
	}
	if s.MinPrice != "" {
		terms = append(terms, "variants.price:>="+s.MinPrice)
	}
	if s.SearchValue != "" {
		terms = append(terms, s.SearchValue)
	}
	switch len(s.Brands) {
	case 0:
	case 1:
		terms = append(terms, `vendor:"`+s.Brands[0]+`"`)
	default:
		parts := make([]string, len(s.Brands))
		for i, b := range s.Brands {
			parts[i] = "(vendor:" + b + ")"
		}
		terms = append(terms, strings.Join(parts, " OR "))
	}
	if s.Tag != "" {
		terms = append(terms, s.Tag)
	}
	return strings.Join(terms, " ")
}

// HasActive reports whether any filter narrows the catalog.
func HasActive(s Set) bool {
	return s.SearchValue != "" ||
		s.MinPrice != "" ||
		s.MaxPrice != "" ||
		len(s.Brands) > 0 ||
		s.IsCollection() ||
		s.Tag != ""
}

// CountActive counts active filters; both price bounds count as one.
func CountActive(s Set) int {
	n := 0
	if s.SearchValue != "" {
		n++
	}
	if s.MinPrice != "" || s.MaxPrice != "" {
		n++
	}
	if len(s.Brands) > 0 {
		n++
	}
	if s.IsCollection() {
		n++
	}
	if s.Tag != "" {
		n++
	}
	return n
}

// IsCollection reports whether s targets a collection instead of the
// product search entry point.
func (s Set) IsCollection() bool {
	return s.Category != "" && s.Category != AllCategories
}

// Values re-encodes s as query parameters, without sort or cursor.
func Values(s Set) url.Values {
	v := url.Values{}
	if s.SearchValue != "" {
		v.Set(ParamSearch, s.SearchValue)
	}
	if s.MinPrice != "" {
		v.Set(ParamMinPrice, s.MinPrice)
	}
	if s.MaxPrice != "" {
		v.Set(ParamMaxPrice, s.MaxPrice)
	}
	for _, b := range s.Brands {
		v.Add(ParamBrand, b)
	}
	if s.Category != "" {
		v.Set(ParamCategory, s.Category)
	}
	if s.Tag != "" {
		v.Set(ParamTag, s.Tag)
	}
	return v
}

// CollectionFilter is one structured filter for the collection entry point.
// Exactly one field is set.
type CollectionFilter struct {
	Price         *PriceFilter `json:"price,omitempty"`
	ProductVendor string       `json:"productVendor,omitempty"`
	Tag           string       `json:"tag,omitempty"`
}

type PriceFilter struct {
	Min *decimal.Decimal `json:"min,omitempty"`
	Max *decimal.Decimal `json:"max,omitempty"`
}

// CollectionFilters translates s into structured collection filters.
// Returns nil when nothing applies.
func CollectionFilters(s Set) []CollectionFilter {
	var out []CollectionFilter
	if s.MinPrice != "" || s.MaxPrice != "" {
		pf := &PriceFilter{}
		if d, err := decimal.NewFromString(s.MinPrice); err == nil {
			pf.Min = &d
		}
		if d, err := decimal.NewFromString(s.MaxPrice); err == nil {
			pf.Max = &d
		}
		if pf.Min != nil || pf.Max != nil {
			out = append(out, CollectionFilter{Price: pf})
		}
	}
	for _, b := range s.Brands {
		out = append(out, CollectionFilter{ProductVendor: Titleify(b)})
	}
	if s.Tag != "" {
		out = append(out, CollectionFilter{Tag: capitalize(s.Tag)})
	}
	return out
}

// Titleify turns a slug like "acme-pet-co" into "Acme Pet Co".
func Titleify(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func first(params url.Values, key string) string {
	for _, v := range params[key] {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func price(raw string) string {
	if raw == "" {
		return ""
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return ""
	}
	return d.String()
}
