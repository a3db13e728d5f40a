package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMinorUnits renders an amount held in minor units (paise) as a
// major-unit string, e.g. 4000 INR -> "INR 40.00".
func FormatMinorUnits(amount int64, currency string) string {
	major := decimal.New(amount, -2).StringFixed(2)
	if currency == "" {
		return major
	}
	return strings.ToUpper(currency) + " " + major
}
