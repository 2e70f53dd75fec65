// Package pricing computes payable order amounts. The computation is pure so
// the fulfillment path can re-derive the expected amount from stored inputs
// and detect tampering at verification time.
package pricing

import "math"

// Currencies
const (
	CurrencyINR = "INR"
	CurrencyUSD = "USD"
)

// domesticTaxRate applies to the fee+addon subtotal for domestic registrations
const domesticTaxRate = 0.18

// OrderAmount computes the payable amount in minor currency units and the
// currency for a registration. The addon price must already be the one
// matching the overseas flag; pass 0 when no addon is selected. Domestic
// registrations are taxed and charged in INR, overseas registrations are
// untaxed and charged in USD.
func OrderAmount(registrationFee, addonPrice float64, overseas bool) (int64, string) {
	subtotal := registrationFee + addonPrice

	if overseas {
		return toMinorUnits(subtotal), CurrencyUSD
	}
	return toMinorUnits(subtotal * (1 + domesticTaxRate)), CurrencyINR
}

// toMinorUnits converts a major-unit amount to minor units, rounding to the
// nearest unit
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
