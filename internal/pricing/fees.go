package pricing

import (
	"github.com/angelmondragon/sheerent-backend/pkg/config"
	"github.com/angelmondragon/sheerent-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

const basisPointsPerUnit = 10000

// Rates holds the settlement constants. The zero value is unusable; start from DefaultRates.
type Rates struct {
	InsuranceRate     decimal.Decimal
	ServiceRate       decimal.Decimal
	InsuredLateFactor decimal.Decimal
	LateSurcharge     int64
	LateFeePerHour    int64
	DamageFee         int64
}

// DefaultRates: 5% insurance, 5% service, 5% insured late discount,
// 10000 late surcharge, 10000 per late hour at return, 30000 damage fee.
func DefaultRates() Rates {
	return Rates{
		InsuranceRate:     decimal.New(5, -2),
		ServiceRate:       decimal.New(5, -2),
		InsuredLateFactor: decimal.New(95, -2),
		LateSurcharge:     10000,
		LateFeePerHour:    10000,
		DamageFee:         30000,
	}
}

// RatesFromConfig converts the basis-point settings into Rates.
func RatesFromConfig(cfg config.SettlementConfig) Rates {
	bps := func(v int64) decimal.Decimal {
		return decimal.NewFromInt(v).Div(decimal.NewFromInt(basisPointsPerUnit))
	}
	return Rates{
		InsuranceRate:     bps(cfg.InsuranceRateBasis),
		ServiceRate:       bps(cfg.ServiceRateBasis),
		InsuredLateFactor: bps(cfg.InsuredLateBasis),
		LateSurcharge:     cfg.LateSurcharge,
		LateFeePerHour:    cfg.LateFeePerHour,
		DamageFee:         cfg.DamageFee,
	}
}

// Calculator is pure and safe for concurrent use.
type Calculator struct {
	rates Rates
}

func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

func (c *Calculator) Rates() Rates {
	return c.rates
}

// Quote is the price of a rental or extension over Hours billable hours.
type Quote struct {
	Hours        int64
	HourlyRate   decimal.Decimal
	UsageFee     decimal.Decimal
	InsuranceFee int64
	ServiceFee   int64
	Total        decimal.Decimal
}

// Charge is the integer point amount debited for the quote.
func (q Quote) Charge() int64 {
	return q.Total.Truncate(0).IntPart()
}

// CoveredBy reports whether balance pays the exact (unrounded) total.
func (q Quote) CoveredBy(balance int64) bool {
	return decimal.NewFromInt(balance).GreaterThanOrEqual(q.Total)
}

// InsuranceFee is round(usage * 5%) when opted in, otherwise zero.
func (c *Calculator) InsuranceFee(usage decimal.Decimal, optedIn bool) int64 {
	if !optedIn {
		return 0
	}
	return RoundPoints(usage.Mul(c.rates.InsuranceRate))
}

// ServiceFee is round(usage * 5%), charged on every rental.
func (c *Calculator) ServiceFee(usage decimal.Decimal) int64 {
	return RoundPoints(usage.Mul(c.rates.ServiceRate))
}

// Quote prices hours of use of an item.
func (c *Calculator) Quote(pricePerUnit int64, unit enums.ItemUnit, hours int64, insured bool) (Quote, error) {
	rate, err := HourlyRate(pricePerUnit, unit)
	if err != nil {
		return Quote{}, err
	}
	usage, err := hourlyAmount(pricePerUnit, unit, hours)
	if err != nil {
		return Quote{}, err
	}
	insurance := c.InsuranceFee(usage, insured)
	service := c.ServiceFee(usage)
	return Quote{
		Hours:        hours,
		HourlyRate:   rate,
		UsageFee:     usage,
		InsuranceFee: insurance,
		ServiceFee:   service,
		Total:        usage.Add(decimal.NewFromInt(insurance)).Add(decimal.NewFromInt(service)),
	}, nil
}

// PayLateFee is floor((lateHours*hourlyRate + surcharge) * (0.95 if insured else 1)).
// It is zero when nothing is overdue.
func (c *Calculator) PayLateFee(pricePerUnit int64, unit enums.ItemUnit, lateHours int64, insured bool) (int64, error) {
	if lateHours <= 0 {
		return 0, nil
	}
	overdue, err := hourlyAmount(pricePerUnit, unit, lateHours)
	if err != nil {
		return 0, err
	}
	fee := overdue.Add(decimal.NewFromInt(c.rates.LateSurcharge))
	if insured {
		fee = fee.Mul(c.rates.InsuredLateFactor)
	}
	return FloorPoints(fee), nil
}

// ReturnLateFee is the flat per-hour late fee applied at return. No insurance discount applies here.
func (c *Calculator) ReturnLateFee(lateHours int64) int64 {
	if lateHours <= 0 {
		return 0
	}
	return lateHours * c.rates.LateFeePerHour
}

// DamageFee is charged only when damage is detected AND insurance was opted in.
// Uninsured damage is free.
func (c *Calculator) DamageFee(damaged, insured bool) int64 {
	if damaged && insured {
		return c.rates.DamageFee
	}
	return 0
}
