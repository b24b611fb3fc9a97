package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice parses a decimal amount from its string form, rejecting
// negatives. The empty string parses as zero.
func ParsePrice(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", trimmed, err)
	}
	if value.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("amount %q must not be negative", trimmed)
	}
	return value.Round(2), nil
}

// ParsePercent parses a discount percentage and validates the [0,100] range.
func ParsePercent(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid percentage %q: %w", trimmed, err)
	}
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Decimal{}, fmt.Errorf("percentage %q must be between 0 and 100", trimmed)
	}
	return value.Round(2), nil
}

// FormatAmount renders a decimal with exactly two fraction digits, the
// form used on invoices and in email bodies.
func FormatAmount(value decimal.Decimal) string {
	return value.StringFixed(2)
}
