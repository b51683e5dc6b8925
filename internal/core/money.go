// Package core provides money parsing and handling utilities.
//
// Amounts are fixed-point decimals with MoneyPlaces fractional digits and
// exchange rates carry RatePlaces. Values are rounded half away from zero
// whenever they are computed, never when they are read back.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MoneyPlaces int32 = 4
	RatePlaces  int32 = 6
)

var hundred = decimal.NewFromInt(100)

// Stored values are INTEGER columns scaled by 10^MoneyPlaces and
// 10^RatePlaces; both bounds keep the scaled value inside int64.
var (
	MaxAmount = decimal.New(1, 14)
	MaxRate   = decimal.New(1, 9)
)

// CheckAmount accepts a positive amount no larger than MaxAmount.
func CheckAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	if d.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// CheckRate accepts a positive rate no larger than MaxRate.
func CheckRate(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidRate
	}
	if d.GreaterThan(MaxRate) {
		return ErrRateTooLarge
	}
	return nil
}

// ParseAmount parses a positive decimal amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// to MoneyPlaces. Zero, negative and malformed values return ErrInvalidAmount,
// values above MaxAmount ErrAmountTooLarge.
//
// Examples:
//
//	ParseAmount("12.34")    -> 12.34, nil
//	ParseAmount("12,34")    -> 12.34, nil
//	ParseAmount("0.00005")  -> 0.0001, nil (rounds up)
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = RoundMoney(d)
	if err := CheckAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ParseSignedAmount parses a non-zero amount that may be negative.
func ParseSignedAmount(s string) (decimal.Decimal, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = RoundMoney(d)
	if d.IsZero() {
		return decimal.Zero, ErrZeroAdjustment
	}
	if d.Abs().GreaterThan(MaxAmount) {
		return decimal.Zero, ErrAmountTooLarge
	}
	return d, nil
}

// ParseRate parses a positive exchange rate.
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return decimal.Zero, ErrInvalidRate
	}
	d = RoundRate(d)
	if err := CheckRate(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RatePlaces)
}

// BaseAmount is amount × rate rounded to MoneyPlaces.
func BaseAmount(amount, rate decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(rate))
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Percentage returns part / whole × 100 rounded to 2 places; 0 when whole is 0.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}
