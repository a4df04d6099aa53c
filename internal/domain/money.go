package domain

import "github.com/shopspring/decimal"

// Money is an amount in a currency. Amounts marshal as decimal strings.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// MoneyFromCents converts an integer minor-unit amount.
func MoneyFromCents(cents int64, currency string) Money {
	return Money{Amount: decimal.New(cents, -2), CurrencyCode: currency}
}

// Zero returns a zero amount in currency.
func Zero(currency string) Money {
	return Money{Amount: decimal.Zero, CurrencyCode: currency}
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount.Add(o.Amount), CurrencyCode: m.CurrencyCode}
}

func (m Money) Mul(qty int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(qty))), CurrencyCode: m.CurrencyCode}
}
