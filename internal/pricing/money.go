// Package pricing computes rental charges, insurance, service, late and damage fees.
//
// All intermediate amounts are exact decimals. Rounding happens only where a
// fee becomes an integer point amount:
//   - insurance and service fees round half to even (banker's rounding),
//   - the pay-late-fee amount is floored,
//   - a rental or extension total is truncated toward zero when debited.
package pricing

import (
	"math"
	"time"

	"github.com/angelmondragon/sheerent-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const hoursPerDay = 24

// RoundPoints rounds a decimal amount half to even into integer points.
func RoundPoints(amount decimal.Decimal) int64 {
	return amount.RoundBank(0).IntPart()
}

// FloorPoints drops the fractional part of a non-negative amount.
func FloorPoints(amount decimal.Decimal) int64 {
	return amount.Floor().IntPart()
}

// unitDivisor is the number of billable hours one price unit spans.
func unitDivisor(unit enums.ItemUnit) (int64, error) {
	switch unit {
	case enums.ItemUnitPerDay:
		return hoursPerDay, nil
	case enums.ItemUnitPerHour:
		return 1, nil
	}
	return 0, pkgerrors.New(pkgerrors.CodeValidation, "unknown item unit").WithDetails(map[string]any{"unit": string(unit)})
}

// HourlyRate is pricePerUnit/24 for per-day items and pricePerUnit for per-hour items.
func HourlyRate(pricePerUnit int64, unit enums.ItemUnit) (decimal.Decimal, error) {
	divisor, err := unitDivisor(unit)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(pricePerUnit).Div(decimal.NewFromInt(divisor)), nil
}

// hourlyAmount multiplies before dividing so per-day prices over whole days stay exact.
func hourlyAmount(pricePerUnit int64, unit enums.ItemUnit, hours int64) (decimal.Decimal, error) {
	divisor, err := unitDivisor(unit)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(pricePerUnit).
		Mul(decimal.NewFromInt(hours)).
		Div(decimal.NewFromInt(divisor)), nil
}

// DurationHours is the billed length of [start, end): whole hours rounded up, never below one.
func DurationHours(start, end time.Time) int64 {
	hours := ceilHours(end.Sub(start))
	if hours < 1 {
		return 1
	}
	return hours
}

// LateHours is how many started hours now lies past end; zero when not overdue.
func LateHours(end, now time.Time) int64 {
	if !now.After(end) {
		return 0
	}
	return ceilHours(now.Sub(end))
}

func ceilHours(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds() / 3600))
}
