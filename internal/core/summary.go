package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID string          `json:"categoryId"`
	Amount     decimal.Decimal `json:"amount"`
}

// Summary totals the non-transfer transactions of a window.
type Summary struct {
	From       Date             `json:"from"`
	To         Date             `json:"to"`
	Income     decimal.Decimal  `json:"income"`
	Expense    decimal.Decimal  `json:"expense"`
	Net        decimal.Decimal  `json:"net"`
	ByCategory []CategoryAmount `json:"byCategory"`
}
