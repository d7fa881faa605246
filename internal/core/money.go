// Package core implements the investment projection engine.
//
// This file contains parsers for the numeric form fields that feed a
// ProjectionInput.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a non-negative decimal string to a float64.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// exponents, thousands separators and empty strings are rejected with
// ErrInvalidAmount. Zero is a valid amount.
//
// Examples:
//
//	ParseAmount("5000")   -> 5000, nil
//	ParseAmount("12,5")   -> 12.5, nil
//	ParseAmount(".5")     -> 0.5, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	digits := 0
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) || r > unicode.MaxASCII {
				return 0, ErrInvalidAmount
			}
			digits++
		}
	}
	if digits == 0 {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Only overflow reaches here; the digit scan rules out syntax errors.
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return v, nil
}

// ParseMonths converts a non-negative integral amount to a month count.
// Integral decimals such as "12.0" or "12,00" are accepted because numeric
// inputs may post them.
func ParseMonths(s string) (int, error) {
	v, err := ParseAmount(s)
	if err != nil {
		return 0, err
	}
	if math.Trunc(v) != v {
		return 0, fmt.Errorf("%w: %s is not a whole number of months", ErrInvalidAmount, strings.TrimSpace(s))
	}
	if v > maxParsedMonths {
		return 0, fmt.Errorf("%w: %s months is out of range", ErrInvalidAmount, strings.TrimSpace(s))
	}
	return int(v), nil
}

// maxParsedMonths keeps the float to int conversion exact.
const maxParsedMonths = 1 << 53
