// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and currency-unit representations.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("12.344") -> 1234, nil (rounds down)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return 0, ErrInvalidAmount
	}
	cents, err := parseUnsignedCents(s)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseSignedDecimalToCents is like ParseDecimalToCents but accepts a leading
// sign and zero. Used for absolute balance edits, where a negative balance is legal.
func ParseSignedDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	cents, err := parseUnsignedCents(s)
	if err != nil {
		return 0, err
	}
	if neg {
		cents = -cents
	}
	return cents, nil
}

func parseUnsignedCents(s string) (int64, error) {
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if iv > MaxCents/100 {
		return 0, ErrAmountOverflow
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents > MaxCents {
		return 0, ErrAmountOverflow
	}
	return cents, nil
}

// MoneyFromFloat rounds a currency-unit float to the nearest cent, half away
// from zero. Only used when reading values persisted as arbitrary JSON numbers.
func MoneyFromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Money{}, ErrInvalidAmount
	}
	c := math.Round(f * 100)
	if math.Abs(c) > float64(MaxCents) {
		return Money{}, ErrAmountOverflow
	}
	return Money{Cents: int64(c)}, nil
}

// Euros returns the currency value as a float64 for display purposes.
// Note: Use cents for calculations to avoid floating-point precision issues.
func (m Money) Euros() float64 {
	return float64(m.Cents) / 100.0
}

// MaxCents bounds every amount the ledger stores, one trillion currency
// units either way. Operands inside the range never overflow int64 when added.
const MaxCents int64 = 100_000_000_000_000

// ErrAmountOverflow is returned when a value or a result leaves the
// [-MaxCents, MaxCents] range. It matches ErrInvalidAmount.
var ErrAmountOverflow = fmt.Errorf("%w: out of range", ErrInvalidAmount)

// InRange reports whether m lies within [-MaxCents, MaxCents].
func (m Money) InRange() bool {
	return m.Cents >= -MaxCents && m.Cents <= MaxCents
}

func bounded(c int64) (Money, error) {
	m := Money{Cents: c}
	if !m.InRange() {
		return Money{}, ErrAmountOverflow
	}
	return m, nil
}

// Add returns m + o, or ErrAmountOverflow when either operand or the sum is
// out of range.
func (m Money) Add(o Money) (Money, error) {
	if !m.InRange() || !o.InRange() {
		return Money{}, ErrAmountOverflow
	}
	return bounded(m.Cents + o.Cents)
}

// Sub returns m - o with the same bounds as Add.
func (m Money) Sub(o Money) (Money, error) {
	return m.Add(o.Neg())
}

// Times returns m multiplied by n, or ErrAmountOverflow.
func (m Money) Times(n int) (Money, error) {
	if !m.InRange() {
		return Money{}, ErrAmountOverflow
	}
	if n == 0 || m.Cents == 0 {
		return Money{}, nil
	}
	an, am := int64(n), m.Cents
	if an < 0 {
		an = -an
	}
	if am < 0 {
		am = -am
	}
	if an > MaxCents/am {
		return Money{}, ErrAmountOverflow
	}
	return bounded(m.Cents * int64(n))
}

// Neg returns -m.
func (m Money) Neg() Money { return Money{Cents: -m.Cents} }

// IsZero reports whether m is exactly zero.
func (m Money) IsZero() bool { return m.Cents == 0 }

// String renders m as a plain decimal with two fraction digits ("12.50",
// "-0.05"). The output is also a valid JSON number.
func (m Money) String() string {
	c := m.Cents
	sign := ""
	if c < 0 {
		sign = "-"
		// -MinInt64 overflows; clamp to keep String total
		if c == math.MinInt64 {
			c = math.MaxInt64
		} else {
			c = -c
		}
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
