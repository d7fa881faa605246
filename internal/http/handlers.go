package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"investimento/internal/chart"
	"investimento/internal/core"
	"investimento/internal/export"
	applog "investimento/internal/log"
)

// Chart viewBox and the number of x-axis labels.
const (
	chartWidth  = 800
	chartHeight = 300
	chartTicks  = 12
)

var templateFuncs = template.FuncMap{
	"amount": formatAmount,
	"coord": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64)
	},
}

type (
	pageView struct {
		Form   ProjectionForm
		Error  string
		Result *resultView
	}

	resultView struct {
		FinalValue       string
		TotalContributed string
		TotalInterest    string
		Months           int
		Deprecated       bool

		HasTarget         bool
		TargetAmount      string
		TargetMonths      int
		TargetUnreachable bool

		Rows   []rowView
		Chart  chart.Chart
		Ticks  []chart.Group
		CSVURL string
	}

	rowView struct {
		Month    int
		Value    string
		Interest string
		Real     string
	}
)

func newResultView(p core.Projection, form ProjectionForm) *resultView {
	sum := core.Summarize(p)
	c := chart.Bars(p, chartWidth, chartHeight)
	v := &resultView{
		FinalValue:       formatDecimal(sum.FinalValueRounded()),
		TotalContributed: formatDecimal(sum.TotalContributedRounded()),
		TotalInterest:    formatDecimal(sum.TotalInterestRounded()),
		Months:           sum.Months,
		Deprecated:       p.Policy == core.ContributionSubtracted,
		Rows:             make([]rowView, len(p.Records)),
		Chart:            c,
		Ticks:            c.Ticks(chartTicks),
		CSVURL:           "/projection.csv?" + form.Query().Encode(),
	}
	for i, r := range p.Records {
		v.Rows[i] = rowView{
			Month:    r.Month,
			Value:    formatAmount(r.CumulativeValue),
			Interest: formatAmount(r.CumulativeInterest),
			Real:     formatAmount(r.RealInterest),
		}
	}
	if p.Input.TargetAmount != nil {
		v.HasTarget = true
		v.TargetAmount = formatAmount(*p.Input.TargetAmount)
	}
	if sum.TargetMonths != nil {
		v.TargetMonths = *sum.TargetMonths
	}
	return v
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).String(),
	})
}

// handleReady reports whether templates loaded, plus CSV cache counters.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	stats := s.encoder.Cache().Stats()
	checks["csv_cache"] = map[string]int64{
		"entries":   int64(stats.Entries),
		"hits":      stats.Hits,
		"misses":    stats.Misses,
		"evictions": stats.Evictions,
	}
	checks["interest_policy"] = string(s.engine.Config().Policy)

	requests := s.tracer.GetMetrics()
	checks["requests"] = map[string]int64{
		"total":            requests.TotalRequests,
		"last_response_us": requests.LastResponseTimeUs,
	}
	limits := s.limiter.GetMetrics()
	checks["rate_limit"] = map[string]int64{
		"rejected": limits.Rejected,
		"clients":  limits.ClientCount,
	}
	checks["security"] = map[string]int64{
		"suspicious_requests": s.detector.GetMetrics().SuspiciousRequests,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// handleIndex renders the form, pre-filled from the query string or defaults.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	s.renderPage(w, r, http.StatusOK, pageView{Form: ProjectionFormFrom(r.URL.Query())})
}

// handleCalculate runs a projection. htmx requests get the result fragment,
// plain form posts get the whole page.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	parser := NewRequestBodyParser(w, r)
	if err := parser.Parse(); err != nil {
		logger.WarnContext(ctx, "Parse body error", applog.FieldError, err)
		s.metrics.Projections.WithLabelValues("invalid").Inc()
		BadRequestError("Invalid request format").Write(w)
		return
	}
	form := ProjectionFormFrom(parser)

	in, err := form.Input(s.maxMonths)
	if err != nil {
		s.metrics.Projections.WithLabelValues("invalid").Inc()
		logger.WarnContext(ctx, "Invalid projection input", applog.FieldError, err, applog.FieldOperation, applog.OpValidate)
		s.renderInvalid(w, r, form, userMessage(err))
		return
	}
	s.metrics.ProjectionMonths.Observe(float64(in.Months))

	p, err := s.engine.Project(in)
	unreachable := errors.Is(err, core.ErrTargetUnreachable)
	if unreachable {
		// The table is still meaningful; only the back-solve failed.
		logger.InfoContext(ctx, "Target unreachable", applog.FieldError, err, applog.FieldOperation, applog.OpBackSolve)
		target := in.TargetAmount
		in.TargetAmount = nil
		p, err = s.engine.Project(in)
		in.TargetAmount = target
	}
	if errors.Is(err, core.ErrInvalidInput) {
		s.metrics.Projections.WithLabelValues("invalid").Inc()
		logger.WarnContext(ctx, "Projection rejected", applog.FieldError, err, applog.FieldOperation, applog.OpCalculate)
		s.renderInvalid(w, r, form, userMessage(err))
		return
	}
	if err != nil {
		s.metrics.Projections.WithLabelValues("error").Inc()
		s.structured.LogError(ctx, "Projection failed", err, applog.ComponentProjection, applog.OpCalculate, nil)
		InternalServerError("Projection failed").Write(w)
		return
	}
	s.structured.LogProjection(ctx, p)

	view := newResultView(p, form)
	if unreachable {
		s.metrics.Projections.WithLabelValues("unreachable").Inc()
		view.HasTarget = true
		view.TargetAmount = formatAmount(*in.TargetAmount)
		view.TargetUnreachable = true
	} else {
		s.metrics.Projections.WithLabelValues("ok").Inc()
	}

	if !isHTMX(r) {
		s.renderPage(w, r, http.StatusOK, pageView{Form: form, Result: view})
		return
	}

	body, err := s.execute("result", view)
	if err != nil {
		s.structured.LogError(ctx, "Template execution error", err, applog.ComponentTemplate, applog.OpRender, nil)
		InternalServerError("Rendering failed").Write(w)
		return
	}
	resp := NewHTMXResponse().
		TriggerProjectionComputed(in.Months, view.CSVURL).
		BodyHTML(body)
	if unreachable {
		resp.TriggerWarningNotification("The target amount is unreachable with these inputs")
	}
	resp.Write(w)
}

// handleDownloadCSV serves the projection described by the query string as a
// CSV attachment. Encodings are memoized by projection content.
func (s *Server) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	form := ProjectionFormFrom(r.URL.Query())
	form.Target = ""
	in, err := form.Input(s.maxMonths)
	if err != nil {
		s.metrics.Projections.WithLabelValues("invalid").Inc()
		UnprocessableEntityError(userMessage(err)).Write(w)
		return
	}

	p, err := s.engine.Project(in)
	if errors.Is(err, core.ErrInvalidInput) {
		s.metrics.Projections.WithLabelValues("invalid").Inc()
		UnprocessableEntityError(userMessage(err)).Write(w)
		return
	}
	if err != nil {
		s.metrics.Projections.WithLabelValues("error").Inc()
		s.structured.LogError(ctx, "Projection failed", err, applog.ComponentProjection, applog.OpExport, nil)
		InternalServerError("Projection failed").Write(w)
		return
	}
	s.metrics.Projections.WithLabelValues("ok").Inc()

	data, hit, err := s.encoder.Encode(p)
	if err != nil {
		s.structured.LogError(ctx, "CSV encoding failed", err, applog.ComponentExport, applog.OpExport, nil)
		InternalServerError("Export failed").Write(w)
		return
	}
	cacheLabel := "miss"
	if hit {
		cacheLabel = "hit"
	}
	s.metrics.CSVExports.WithLabelValues(cacheLabel).Inc()
	s.structured.LogExport(ctx, in.Months, len(data), hit)

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) renderInvalid(w http.ResponseWriter, r *http.Request, form ProjectionForm, msg string) {
	if isHTMX(r) {
		UnprocessableEntityError(msg).Write(w)
		return
	}
	s.renderPage(w, r, http.StatusUnprocessableEntity, pageView{Form: form, Error: msg})
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, data pageView) {
	body, err := s.execute("index.html", data)
	if err != nil {
		s.structured.LogError(r.Context(), "Index template execution failed", err, applog.ComponentTemplate, applog.OpRender, nil)
		http.Error(w, "rendering failed", http.StatusInternalServerError)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(body).Write(w)
}

// execute renders into a buffer so a failing template never leaves a
// half-written response.
func (s *Server) execute(name string, data interface{}) ([]byte, error) {
	if s.templates == nil {
		return nil, errors.New("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
