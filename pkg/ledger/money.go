package ledger

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var minorUnitsPerMajor = decimal.NewFromInt(minorUnitsPerMajorUnit)

// MinorUnitsFromDecimal converts a major-unit amount such as 100.50 into minor units.
// Amounts with more than two decimal places are rejected.
func MinorUnitsFromDecimal(major decimal.Decimal) (int64, error) {
	scaled := major.Mul(minorUnitsPerMajor)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: at most two decimal places", ErrInvalidAmountCents)
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || scaled.LessThan(decimal.NewFromInt(math.MinInt64+1)) {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmountCents)
	}
	return scaled.IntPart(), nil
}

// ParseMajorAmount parses a positive major-unit amount string.
func ParseMajorAmount(raw string) (PositiveAmountCents, error) {
	major, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmountCents, raw)
	}
	return PositiveAmountFromDecimal(major)
}

// PositiveAmountFromDecimal converts a positive major-unit amount.
func PositiveAmountFromDecimal(major decimal.Decimal) (PositiveAmountCents, error) {
	minor, err := MinorUnitsFromDecimal(major)
	if err != nil {
		return 0, err
	}
	return NewPositiveAmountCents(minor)
}

// SignedAmountFromDecimal converts a non-zero signed major-unit amount.
func SignedAmountFromDecimal(major decimal.Decimal) (SignedAmountCents, error) {
	minor, err := MinorUnitsFromDecimal(major)
	if err != nil {
		return 0, err
	}
	return NewSignedAmountCents(minor)
}

// MajorUnits renders minor units as a decimal in major units.
func MajorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatMajor renders minor units as a fixed two-decimal string.
func FormatMajor(minor int64) string {
	return MajorUnits(minor).StringFixed(2)
}
