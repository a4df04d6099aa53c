package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	productrepo "storefront/internal/repository/product"
)

const (
	priceMaxPrefix = "variants.price:<="
	priceMinPrefix = "variants.price:>="
	vendorPrefix   = "vendor:"
	tagPrefix      = "tag:"
)

// ParseQuery turns a search query into repository criteria.
//
// Supported terms: variants.price:<=N, variants.price:>=N, vendor:x,
// vendor:"x y", tag:x, parenthesised groups joined by OR, and bare words.
// Vendor terms are alternatives; every other term must match.
func ParseQuery(q string) productrepo.Criteria {
	var c productrepo.Criteria
	for _, tok := range tokenize(q) {
		tok = strings.TrimLeft(tok, "(")
		tok = strings.TrimRight(tok, ")")
		if tok == "" || tok == "OR" || tok == "AND" {
			continue
		}
		lower := strings.ToLower(tok)
		switch {
		case strings.HasPrefix(lower, priceMaxPrefix):
			if d, ok := parsePrice(tok[len(priceMaxPrefix):]); ok {
				c.MaxPrice = &d
			}
		case strings.HasPrefix(lower, priceMinPrefix):
			if d, ok := parsePrice(tok[len(priceMinPrefix):]); ok {
				c.MinPrice = &d
			}
		case strings.HasPrefix(lower, vendorPrefix):
			if v := unquote(tok[len(vendorPrefix):]); v != "" {
				c.Vendors = append(c.Vendors, v)
			}
		case strings.HasPrefix(lower, tagPrefix):
			if v := unquote(tok[len(tagPrefix):]); v != "" {
				c.Tags = append(c.Tags, v)
			}
		default:
			if v := unquote(tok); v != "" {
				c.Terms = append(c.Terms, v)
			}
		}
	}
	return c
}

// tokenize splits on whitespace outside double quotes and parentheses.
// A quote opens a span only at the start of a token or after a colon, and
// only when the next quote ends a token; any other quote is literal.
func tokenize(q string) []string {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
		depth   int
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	rs := []rune(q)
	for i, r := range rs {
		switch {
		case r == '"' && inQuote:
			inQuote = false
			cur.WriteRune(r)
		case r == '"' && opensQuote(rs, i, cur.String()):
			inQuote = true
			cur.WriteRune(r)
		case !inQuote && r == '(':
			depth++
			cur.WriteRune(r)
		case !inQuote && r == ')' && depth > 0:
			depth--
			cur.WriteRune(r)
		case !inQuote && depth == 0 && isSpace(r):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func opensQuote(rs []rune, i int, token string) bool {
	if strings.TrimLeft(token, "(") != "" && rs[i-1] != ':' {
		return false
	}
	for j := i + 1; j < len(rs); j++ {
		if rs[j] == '"' {
			return j+1 == len(rs) || isSpace(rs[j+1]) || rs[j+1] == ')'
		}
	}
	return false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}

func unquote(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}

func parsePrice(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(unquote(s))
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}
