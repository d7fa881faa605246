package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"investimento/internal/core"
	applog "investimento/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Output: &bytes.Buffer{}})
	}
	srv := NewServer(":0", opts)
	t.Cleanup(func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
	return srv
}

func postForm(srv *Server, values url.Values, htmx bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/calculate", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Calculate", `name="monthly" value="5000"`, `name="months" value="60"`, `name="rate" value="13"`, "Victor Sotero"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s invalid json: %v", path, err)
		}
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status=%d, want 404", rr.Code)
	}
}

func TestIndexPrefillsFromQuery(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?monthly=250&months=12", nil))
	if !strings.Contains(rr.Body.String(), `name="monthly" value="250"`) {
		t.Errorf("query value not echoed into the form")
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("static status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}

func TestCalculateHTMX(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := postForm(srv, url.Values{"initial": {"0"}, "monthly": {"5000"}, "months": {"3"}, "rate": {"12"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{
		"In the end, you will have: <strong>15,150.50</strong>",
		"<td>2</td><td>10,050.00</td><td>50.00</td><td>50.00</td>",
		"<td>3</td><td>15,150.50</td><td>150.50</td><td>100.50</td>",
		"/projection.csv?",
		"<svg",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("result fragment missing %q", want)
		}
	}
	if strings.Contains(body, "<html") {
		t.Error("htmx request received the full page")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "projection:computed") {
		t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
	if got := testutil.ToFloat64(srv.Metrics().Projections.WithLabelValues("ok")); got != 1 {
		t.Errorf("projections_total{ok} = %v, want 1", got)
	}
}

func TestCalculateFullPage(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := postForm(srv, url.Values{"monthly": {"100"}, "months": {"2"}, "rate": {"0"}}, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "<html") || !strings.Contains(body, "In the end, you will have: <strong>200.00</strong>") {
		t.Errorf("unexpected full page body")
	}
}

func TestCalculateJSONBody(t *testing.T) {
	srv := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/calculate", strings.NewReader(`{"initial":1000,"monthly":"0","months":12,"rate":0}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HX-Request", "true")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "<strong>1,000.00</strong>") {
		t.Errorf("json body not applied")
	}
}

func TestCalculateValidation(t *testing.T) {
	srv := newTestServer(t, Options{MaxMonths: 120})

	tests := []struct {
		name   string
		values url.Values
		want   string
	}{
		{"negative amount", url.Values{"initial": {"-1"}}, "Initial amount must be a non-negative number"},
		{"garbage contribution", url.Values{"monthly": {"abc"}}, "Monthly investment must be a non-negative number"},
		{"fractional months", url.Values{"months": {"1.5"}}, "Total time"},
		{"months over cap", url.Values{"months": {"121"}}, "at most 120 months"},
		{"bad target", url.Values{"target": {"x"}}, "Target amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(srv, tt.values, true)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d, want 422", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body %q missing %q", rr.Body.String(), tt.want)
			}
		})
	}

	rr := postForm(srv, url.Values{"initial": {"-1"}}, false)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "<html") {
		t.Errorf("plain post: status=%d, want full page with 422", rr.Code)
	}
	if got := testutil.ToFloat64(srv.Metrics().Projections.WithLabelValues("invalid")); got != float64(len(tests)+1) {
		t.Errorf("projections_total{invalid} = %v", got)
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/calculate", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /calculate status=%d, want 405", rr.Code)
	}
}

func TestCalculateTarget(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := postForm(srv, url.Values{"monthly": {"100"}, "months": {"3"}, "rate": {"0"}, "target": {"500"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "reached after 5 months") {
		t.Errorf("target line missing: %s", rr.Body.String())
	}

	rr = postForm(srv, url.Values{"monthly": {"0"}, "months": {"3"}, "rate": {"0"}, "target": {"100"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("unreachable status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "is unreachable") {
		t.Errorf("unreachable line missing")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"type":"warning"`) {
		t.Errorf("warning notification missing: %s", rr.Header().Get("HX-Trigger"))
	}
	if got := testutil.ToFloat64(srv.Metrics().Projections.WithLabelValues("unreachable")); got != 1 {
		t.Errorf("projections_total{unreachable} = %v", got)
	}
}

func TestDeprecatedPolicyBanner(t *testing.T) {
	eng, err := core.NewEngine(core.EngineConfig{Policy: core.ContributionSubtracted})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	srv := newTestServer(t, Options{Engine: eng})
	rr := postForm(srv, url.Values{"initial": {"100"}, "months": {"1"}}, true)
	if !strings.Contains(rr.Body.String(), "counted as interest") {
		t.Errorf("deprecated policy banner missing")
	}
}

func TestDownloadCSV(t *testing.T) {
	srv := newTestServer(t, Options{})
	path := "/projection.csv?initial=0&monthly=5000&months=3&rate=12"

	for i, wantCache := range []string{"miss", "hit"} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
			t.Errorf("Content-Type = %q", ct)
		}
		if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="interest_table.csv"` {
			t.Errorf("Content-Disposition = %q", cd)
		}
		rows, err := csv.NewReader(rr.Body).ReadAll()
		if err != nil {
			t.Fatalf("csv parse: %v", err)
		}
		if len(rows) != 5 || rows[0][0] != "month" || rows[4][1] != "15150.5" {
			t.Errorf("unexpected csv rows: %v", rows)
		}
		if got := testutil.ToFloat64(srv.Metrics().CSVExports.WithLabelValues(wantCache)); got != 1 {
			t.Errorf("csv_exports_total{%s} = %v, want 1", wantCache, got)
		}
	}

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projection.csv?months=-3", nil))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid csv request status=%d, want 422", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 2})

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = postForm(srv, url.Values{"months": {"1"}}, true).Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}
	if got := testutil.ToFloat64(srv.Metrics().RateLimitRejected); got != 1 {
		t.Errorf("rate_limit_rejections_total = %v, want 1", got)
	}

	// Page loads are not limited.
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("index status=%d after limit", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})
	postForm(srv, url.Values{"months": {"1"}}, true)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `http_requests_total{path="/calculate",status="200"} 1`) {
		t.Errorf("request counter missing from metrics output")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	srv := NewServer(":0", Options{Logger: applog.New(applog.Config{Output: &bytes.Buffer{}})})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
}

func TestProjectionOverflowRejected(t *testing.T) {
	srv := newTestServer(t, Options{})
	values := url.Values{"monthly": {"5000"}, "months": {"1200"}, "rate": {"1000"}}

	rr := postForm(srv, values, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("calculate status=%d, want 422", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "projection overflows") {
		t.Errorf("body %q missing overflow message", rr.Body.String())
	}

	rr = postForm(srv, values, false)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "<html") {
		t.Errorf("plain post: status=%d, want full page with 422", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projection.csv?"+values.Encode(), nil))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("csv status=%d, want 422", rr.Code)
	}
	if got := testutil.ToFloat64(srv.Metrics().Projections.WithLabelValues("error")); got != 0 {
		t.Errorf("projections_total{error} = %v, want 0", got)
	}
}

func TestTrustedProxies(t *testing.T) {
	tests := []struct {
		name    string
		proxies []string
		want    []int
	}{
		// Two clients behind one proxy share its bucket unless it is trusted.
		{"untrusted proxy", nil, []int{http.StatusOK, http.StatusTooManyRequests}},
		{"trusted proxy", []string{"203.0.113.0/24"}, []int{http.StatusOK, http.StatusOK}},
		{"invalid cidr is ignored", []string{"not-a-cidr"}, []int{http.StatusOK, http.StatusTooManyRequests}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Options{RateLimitPerMinute: 1, TrustedProxies: tt.proxies})
			for i, client := range []string{"198.51.100.7", "198.51.100.8"} {
				req := httptest.NewRequest(http.MethodGet, "/projection.csv?months=1", nil)
				req.RemoteAddr = "203.0.113.5:4711"
				req.Header.Set("X-Forwarded-For", client)
				rr := httptest.NewRecorder()
				srv.Handler.ServeHTTP(rr, req)
				if rr.Code != tt.want[i] {
					t.Errorf("request %d status=%d, want %d", i, rr.Code, tt.want[i])
				}
			}
		})
	}
}

func TestReadyReportsMiddlewareCounters(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 1})
	postForm(srv, url.Values{"months": {"1"}}, true)
	postForm(srv, url.Values{"months": {"1"}}, true)

	probe := httptest.NewRequest(http.MethodGet, "/.env", nil)
	srv.Handler.ServeHTTP(httptest.NewRecorder(), probe)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var payload struct {
		Status string
		Checks struct {
			Requests  map[string]int64 `json:"requests"`
			RateLimit map[string]int64 `json:"rate_limit"`
			Security  map[string]int64 `json:"security"`
		}
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Status != "ready" {
		t.Errorf("status = %q", payload.Status)
	}
	// The readiness request counts itself.
	if got := payload.Checks.Requests["total"]; got != 4 {
		t.Errorf("requests.total = %d, want 4", got)
	}
	if got := payload.Checks.RateLimit["rejected"]; got != 1 {
		t.Errorf("rate_limit.rejected = %d, want 1", got)
	}
	if got := payload.Checks.RateLimit["clients"]; got != 1 {
		t.Errorf("rate_limit.clients = %d, want 1", got)
	}
	if got := payload.Checks.Security["suspicious_requests"]; got != 1 {
		t.Errorf("security.suspicious_requests = %d, want 1", got)
	}
}
