package core

import "github.com/shopspring/decimal"

// Summary condenses a projection into the headline figures shown to the user.
type Summary struct {
	FinalValue       float64
	TotalContributed float64
	TotalInterest    float64
	Months           int

	// TargetMonths mirrors Projection.TargetMonths.
	TargetMonths *int
}

// Summarize computes the headline figures of p.
func Summarize(p Projection) Summary {
	final := p.Final()
	return Summary{
		FinalValue:       final.CumulativeValue,
		TotalContributed: p.Input.InitialAmount + p.Input.MonthlyContribution*float64(p.Input.Months),
		TotalInterest:    final.CumulativeInterest,
		Months:           p.Input.Months,
		TargetMonths:     p.TargetMonths,
	}
}

// RoundAmount rounds v half away from zero to two decimal places.
func RoundAmount(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// FinalValueRounded is the final value at display precision.
func (s Summary) FinalValueRounded() decimal.Decimal {
	return RoundAmount(s.FinalValue)
}

// TotalInterestRounded is the accrued interest at display precision.
func (s Summary) TotalInterestRounded() decimal.Decimal {
	return RoundAmount(s.TotalInterest)
}

// TotalContributedRounded is the contributed principal at display precision.
func (s Summary) TotalContributedRounded() decimal.Decimal {
	return RoundAmount(s.TotalContributed)
}
