// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and formatting them for display.
package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var amountShape = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ParseAmount converts a stored decimal string to an amount.
//
// Only plain positive decimals are accepted: no sign, no exponent, no currency
// symbol and no thousands separator. Zero is rejected.
//
// Examples:
//
//	ParseAmount("100")   -> 100, nil
//	ParseAmount("40.50") -> 40.5, nil
//	ParseAmount("1e3")   -> error
//	ParseAmount("-3")    -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	if !amountShape.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidAmount, s)
	}
	return d, nil
}

// ParseUserAmount is the lenient variant used for typed input: it trims
// surrounding space and accepts a decimal comma (12,34).
func ParseUserAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	return ParseAmount(s)
}

// FormatAmount renders an amount with two decimals and a currency prefix,
// e.g. FormatAmount(d, "$") -> "$40.00". Negative values keep the sign after
// the symbol ("$-20.00").
func FormatAmount(d decimal.Decimal, symbol string) string {
	return symbol + d.StringFixed(2)
}
