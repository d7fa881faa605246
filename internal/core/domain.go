package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

const (
	// AccrualSummed tracks interest as the running sum of value*rate.
	AccrualSummed InterestPolicy = "accrual"

	// ContributionSubtracted reports interest as value minus contributions to date.
	//
	// Deprecated: the initial amount and its growth are reported as interest.
	// Use AccrualSummed.
	ContributionSubtracted InterestPolicy = "contribution"
)

// Boundary defaults for the projection form.
const (
	DefaultInitialAmount       = 0
	DefaultMonthlyContribution = 5000
	DefaultMonths              = 60
	DefaultAnnualRatePercent   = 13
)

// MaxMonths is the longest projection the engine computes (10,000 years).
// Keep in sync with the lte tag on ProjectionInput.Months.
const MaxMonths = 120000

type (
	InterestPolicy string

	// ProjectionInput is the full parameter set of a projection.
	ProjectionInput struct {
		InitialAmount       float64  `validate:"gte=0"`
		MonthlyContribution float64  `validate:"gte=0"`
		Months              int      `validate:"gte=0,lte=120000"`
		AnnualRatePercent   float64  `validate:"gte=0"`
		TargetAmount        *float64 // optional back-solve target
	}

	// MonthRecord is one row of a projection. Month 0 is the starting balance.
	MonthRecord struct {
		Month              int
		CumulativeValue    float64
		CumulativeInterest float64
		RealInterest       float64
	}

	// Projection is the immutable result of a projection run.
	Projection struct {
		Input   ProjectionInput
		Policy  InterestPolicy
		Records []MonthRecord

		// TargetMonths is set when Input.TargetAmount was supplied.
		TargetMonths *int
	}
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrTargetUnreachable = errors.New("target unreachable")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidPolicy     = errors.New("invalid interest policy")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first invalid field wrapped in ErrInvalidInput.
func (in ProjectionInput) Validate() error {
	// validator accepts +Inf for gte=0, so finiteness is checked first.
	fields := []struct {
		name string
		v    float64
	}{
		{"InitialAmount", in.InitialAmount},
		{"MonthlyContribution", in.MonthlyContribution},
		{"AnnualRatePercent", in.AnnualRatePercent},
	}
	if in.TargetAmount != nil {
		fields = append(fields, struct {
			name string
			v    float64
		}{"TargetAmount", *in.TargetAmount})
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidInput, f.name)
		}
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			op := ">="
			if fe.Tag() == "lte" {
				op = "<="
			}
			return fmt.Errorf("%w: %s must be %s %s (got %v)", ErrInvalidInput, fe.Field(), op, fe.Param(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// MonthlyRate converts the annual percentage into the per-month compounding rate.
func (in ProjectionInput) MonthlyRate() float64 {
	return in.AnnualRatePercent / 100 / 12
}

func (p InterestPolicy) Validate() error {
	switch p {
	case AccrualSummed, ContributionSubtracted:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, string(p))
	}
}

// Len returns the number of rows, including month 0.
func (p Projection) Len() int {
	return len(p.Records)
}

// Final returns the last row. A valid projection always has at least month 0.
func (p Projection) Final() MonthRecord {
	if len(p.Records) == 0 {
		return MonthRecord{}
	}
	return p.Records[len(p.Records)-1]
}

// Values returns the cumulative value series.
func (p Projection) Values() []float64 {
	out := make([]float64, len(p.Records))
	for i, r := range p.Records {
		out[i] = r.CumulativeValue
	}
	return out
}

// Interests returns the cumulative interest series.
func (p Projection) Interests() []float64 {
	out := make([]float64, len(p.Records))
	for i, r := range p.Records {
		out[i] = r.CumulativeInterest
	}
	return out
}

// RealInterests returns the per-month interest series.
func (p Projection) RealInterests() []float64 {
	out := make([]float64, len(p.Records))
	for i, r := range p.Records {
		out[i] = r.RealInterest
	}
	return out
}
