package core

import (
	"fmt"
	"math"
)

// DefaultMaxTargetMonths bounds the target back-solve (1000 years).
const DefaultMaxTargetMonths = 12000

// EngineConfig controls how projections are computed.
type EngineConfig struct {
	// Policy selects how cumulative interest is accounted (default: AccrualSummed).
	Policy InterestPolicy

	// MaxTargetMonths is the iteration ceiling of MonthsToTarget (default: 12000).
	MaxTargetMonths int
}

// DefaultEngineConfig returns the canonical accrual-summed configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Policy:          AccrualSummed,
		MaxTargetMonths: DefaultMaxTargetMonths,
	}
}

// Engine computes projections. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	cfg EngineConfig
}

// NewEngine creates an engine, filling zero config fields with defaults.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	def := DefaultEngineConfig()
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
	if cfg.MaxTargetMonths <= 0 {
		cfg.MaxTargetMonths = def.MaxTargetMonths
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

var defaultEngine = &Engine{cfg: DefaultEngineConfig()}

// Project runs the default engine.
func Project(in ProjectionInput) (Projection, error) {
	return defaultEngine.Project(in)
}

// MonthsToTarget runs the default engine's back-solve.
func MonthsToTarget(monthlyContribution, annualRatePercent, target float64) (int, error) {
	return defaultEngine.MonthsToTarget(monthlyContribution, annualRatePercent, target)
}

// Config returns the effective engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Project computes Months+1 rows: month 0 holds the initial amount, then
// value[i+1] = value[i] + contribution + value[i]*monthlyRate.
//
// When in.TargetAmount is set the back-solve runs as well, and an unreachable
// target fails the whole call with ErrTargetUnreachable. Values that leave the
// float64 range fail with ErrInvalidInput.
func (e *Engine) Project(in ProjectionInput) (Projection, error) {
	if err := in.Validate(); err != nil {
		return Projection{}, err
	}

	rate := in.MonthlyRate()
	values := make([]float64, in.Months+1)
	accrued := make([]float64, in.Months+1)
	values[0] = in.InitialAmount
	for i := 0; i < in.Months; i++ {
		gain := values[i] * rate
		values[i+1] = values[i] + in.MonthlyContribution + gain
		accrued[i+1] = accrued[i] + gain
	}

	interest := accrued
	if e.cfg.Policy == ContributionSubtracted {
		interest = contributionSubtracted(values, in.MonthlyContribution)
	}
	perMonth := firstDifference(interest)

	records := make([]MonthRecord, len(values))
	for i := range values {
		if !finite(values[i], interest[i], perMonth[i]) {
			return Projection{}, fmt.Errorf("%w: projection overflows at month %d, reduce the interest rate or the total time", ErrInvalidInput, i)
		}
		records[i] = MonthRecord{
			Month:              i,
			CumulativeValue:    values[i],
			CumulativeInterest: interest[i],
			RealInterest:       perMonth[i],
		}
	}

	p := Projection{
		Input:   in,
		Policy:  e.cfg.Policy,
		Records: records,
	}
	if in.TargetAmount != nil {
		months, err := e.MonthsToTarget(in.MonthlyContribution, in.AnnualRatePercent, *in.TargetAmount)
		if err != nil {
			return Projection{}, err
		}
		p.TargetMonths = &months
	}
	return p, nil
}

// MonthsToTarget counts how many months of contributions, starting from a zero
// balance, it takes for the value to reach target.
func (e *Engine) MonthsToTarget(monthlyContribution, annualRatePercent, target float64) (int, error) {
	in := ProjectionInput{
		MonthlyContribution: monthlyContribution,
		AnnualRatePercent:   annualRatePercent,
		TargetAmount:        &target,
	}
	if err := in.Validate(); err != nil {
		return 0, err
	}
	if target <= 0 {
		return 0, nil
	}
	// From a zero balance nothing accrues without contributions.
	if monthlyContribution == 0 {
		return 0, fmt.Errorf("%w: balance stays at 0 without contributions", ErrTargetUnreachable)
	}

	rate := in.MonthlyRate()
	value := 0.0
	for months := 1; months <= e.cfg.MaxTargetMonths; months++ {
		value += monthlyContribution + value*rate
		if value >= target {
			return months, nil
		}
	}
	return 0, fmt.Errorf("%w: not reached within %d months", ErrTargetUnreachable, e.cfg.MaxTargetMonths)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// contributionSubtracted computes value[i] - contribution*i.
func contributionSubtracted(values []float64, contribution float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v - contribution*float64(i)
	}
	return out
}

// firstDifference returns d with d[0] = 0 and d[i] = s[i] - s[i-1].
func firstDifference(s []float64) []float64 {
	d := make([]float64, len(s))
	for i := 1; i < len(s); i++ {
		d[i] = s[i] - s[i-1]
	}
	return d
}
