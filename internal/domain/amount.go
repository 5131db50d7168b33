package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places in an amount's minor units
const MinorUnitExponent = 6

// CurrencyPrefix is prepended to formatted amounts
const CurrencyPrefix = "$"

// FormatAmount renders an integer minor-unit string as "$X.XX".
// Empty or malformed amounts render as "$0.00". Rounding works on the exact
// decimal value, half away from zero, so 15000 renders as "$0.02".
func FormatAmount(raw string) string {
	return CurrencyPrefix + AmountDecimal(raw).StringFixed(2)
}

// AmountDecimal converts a minor-unit string into whole currency units
func AmountDecimal(raw string) decimal.Decimal {
	return parseMinorUnits(raw).Shift(-MinorUnitExponent)
}

func parseMinorUnits(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	// Amounts are integral; anything after a decimal point is dropped
	return d.Truncate(0)
}
