// Package core holds the domain model of the fund ledger: persons,
// ranked projects and sub-projects, transfers, and exact decimal
// amounts.
//
// Amounts are decimal.Decimal throughout. Balance arithmetic never
// touches floating point: repeated float additions would eventually
// misreport a near-zero balance as negative.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-supplied amount string into an exact
// decimal. It accepts both dot (12.34) and comma (12,34) separators
// and arbitrary precision. Returns ErrInvalidAmount for empty input,
// explicit signs, unparseable text, or negative values.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// The sign is carried by the transfer kind, not the amount
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
