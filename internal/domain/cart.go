package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID            string     `json:"id"`
	Lines         []CartLine `json:"lines"`
	TotalQuantity int        `json:"totalQuantity"`
	Cost          CartCost   `json:"cost"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type CartCost struct {
	Subtotal Money `json:"subtotalAmount"`
	Tax      Money `json:"totalTaxAmount"`
	Total    Money `json:"totalAmount"`
}

type CartLine struct {
	ID            string      `json:"id"`
	MerchandiseID string      `json:"merchandiseId"`
	Quantity      int         `json:"quantity"`
	Cost          LineCost    `json:"cost"`
	Merchandise   Merchandise `json:"merchandise"`
	CreatedAt     time.Time   `json:"createdAt"`
}

type LineCost struct {
	AmountPerQuantity Money `json:"amountPerQuantity"`
	Total             Money `json:"totalAmount"`
}

// Merchandise is the variant snapshot shown next to a cart line.
type Merchandise struct {
	ProductID     string `json:"productId"`
	ProductHandle string `json:"productHandle,omitempty"`
	ProductTitle  string `json:"productTitle,omitempty"`
	VariantTitle  string `json:"title,omitempty"`
}

// LineInput adds merchandise to a cart.
type LineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// LineUpdate sets the quantity of an existing line.
type LineUpdate struct {
	ID            string `json:"id"`
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// Recalculate derives line totals, TotalQuantity and Cost from the lines.
func (c *Cart) Recalculate(currency string, taxRate decimal.Decimal) {
	subtotal := Zero(currency)
	qty := 0
	for i := range c.Lines {
		line := &c.Lines[i]
		line.Cost.Total = line.Cost.AmountPerQuantity.Mul(line.Quantity)
		subtotal = subtotal.Add(line.Cost.Total)
		qty += line.Quantity
	}
	tax := Money{Amount: subtotal.Amount.Mul(taxRate).Round(2), CurrencyCode: currency}
	c.TotalQuantity = qty
	c.Cost = CartCost{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// LineFor returns the line holding merchandiseID, if any.
func (c *Cart) LineFor(merchandiseID string) (CartLine, bool) {
	if c == nil {
		return CartLine{}, false
	}
	for _, l := range c.Lines {
		if l.MerchandiseID == merchandiseID {
			return l, true
		}
	}
	return CartLine{}, false
}
