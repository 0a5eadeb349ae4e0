package models

import "github.com/shopspring/decimal"

// Money columns are stored as decimal(15,2)
const moneyPlaces = 2

// RoundMoney rounds an amount to the stored precision
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// MaxZero floors an amount at zero
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
