// Package http provides HTTP server and handler implementations.
//
// This file implements parsing of the projection form into a validated
// core.ProjectionInput, for both form-encoded and JSON bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"investimento/internal/core"
)

// Form field names shared by the page, the CSV link and JSON bodies.
const (
	fieldInitial = "initial"
	fieldMonthly = "monthly"
	fieldMonths  = "months"
	fieldRate    = "rate"
	fieldTarget  = "target"
)

// maxBodyBytes caps calculate request bodies.
const maxBodyBytes = 1 << 14

// ProjectionForm holds the raw form values, echoed back into the page so the
// user sees what they typed.
type ProjectionForm struct {
	Initial string
	Monthly string
	Months  string
	Rate    string
	Target  string
}

// DefaultProjectionForm returns the values shown on first load.
func DefaultProjectionForm() ProjectionForm {
	return ProjectionForm{
		Initial: strconv.Itoa(core.DefaultInitialAmount),
		Monthly: strconv.Itoa(core.DefaultMonthlyContribution),
		Months:  strconv.Itoa(core.DefaultMonths),
		Rate:    strconv.Itoa(core.DefaultAnnualRatePercent),
	}
}

// valueGetter is satisfied by url.Values and RequestBodyParser.
type valueGetter interface {
	Get(key string) string
}

// ProjectionFormFrom reads the form fields from src. Missing amounts fall back
// to the defaults; a missing target means no back-solve.
func ProjectionFormFrom(src valueGetter) ProjectionForm {
	f := DefaultProjectionForm()
	pick := func(dst *string, key string) {
		if v := sanitizeInput(src.Get(key)); v != "" {
			*dst = v
		}
	}
	pick(&f.Initial, fieldInitial)
	pick(&f.Monthly, fieldMonthly)
	pick(&f.Months, fieldMonths)
	pick(&f.Rate, fieldRate)
	f.Target = sanitizeInput(src.Get(fieldTarget))
	return f
}

// Input converts the form into a validated core.ProjectionInput. Every error
// wraps core.ErrInvalidInput and names the offending field. maxMonths <= 0
// disables the month ceiling.
func (f ProjectionForm) Input(maxMonths int) (core.ProjectionInput, error) {
	var in core.ProjectionInput
	var err error

	if in.InitialAmount, err = core.ParseAmount(f.Initial); err != nil {
		return core.ProjectionInput{}, fieldError("Initial amount", err)
	}
	if in.MonthlyContribution, err = core.ParseAmount(f.Monthly); err != nil {
		return core.ProjectionInput{}, fieldError("Monthly investment", err)
	}
	if in.Months, err = core.ParseMonths(f.Months); err != nil {
		return core.ProjectionInput{}, fmt.Errorf("%w: Total time must be a non-negative whole number of months", core.ErrInvalidInput)
	}
	if maxMonths > 0 && in.Months > maxMonths {
		return core.ProjectionInput{}, fmt.Errorf("%w: Total time must be at most %d months", core.ErrInvalidInput, maxMonths)
	}
	if in.AnnualRatePercent, err = core.ParseAmount(f.Rate); err != nil {
		return core.ProjectionInput{}, fieldError("Annual interest rate", err)
	}
	if f.Target != "" {
		target, err := core.ParseAmount(f.Target)
		if err != nil {
			return core.ProjectionInput{}, fieldError("Target amount", err)
		}
		in.TargetAmount = &target
	}

	if err := in.Validate(); err != nil {
		return core.ProjectionInput{}, err
	}
	return in, nil
}

// Query encodes the projection parameters (without the target) for the CSV
// download link.
func (f ProjectionForm) Query() url.Values {
	return url.Values{
		fieldInitial: {f.Initial},
		fieldMonthly: {f.Monthly},
		fieldMonths:  {f.Months},
		fieldRate:    {f.Rate},
	}
}

func fieldError(field string, err error) error {
	if errors.Is(err, core.ErrInvalidAmount) {
		return fmt.Errorf("%w: %s must be a non-negative number", core.ErrInvalidInput, field)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrInvalidInput, field, err)
}

// userMessage strips the sentinel prefix for display.
func userMessage(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, core.ErrInvalidInput.Error()+": "); ok {
		return rest
	}
	return msg
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]interface{}
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}
