package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	applog "investimento/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Output: &buf})

	var seen string
	var observed int
	m := NewMiddleware(logger, func(*http.Request) string { return "203.0.113.9" },
		func(_ *http.Request, status int, _ time.Duration) { observed = status })

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		if got := applog.FromContext(r.Context()).Component(); got != applog.ComponentHTTP {
			t.Errorf("context logger component = %q", got)
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a uuid: %v", seen, err)
	}
	if rr.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header = %q, want %q", rr.Header().Get(RequestIDHeader), seen)
	}
	if observed != http.StatusTeapot {
		t.Errorf("observer saw %d, want 418", observed)
	}
	if !strings.Contains(buf.String(), "status_code=418") || !strings.Contains(buf.String(), "client_ip=203.0.113.9") {
		t.Errorf("completion log missing fields: %s", buf.String())
	}
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Errorf("TotalRequests = %d, want 1", got)
	}
}

func TestMiddlewareReusesUpstreamID(t *testing.T) {
	m := NewMiddleware(applog.New(applog.Config{Output: &bytes.Buffer{}}), nil, nil)
	upstream := uuid.NewString()

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, upstream)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != upstream {
		t.Errorf("request id = %q, want upstream %q", seen, upstream)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not a uuid")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "not a uuid" {
		t.Error("malformed upstream id was trusted")
	}
}

func TestStatusCapturedOnce(t *testing.T) {
	var observed int
	m := NewMiddleware(applog.New(applog.Config{Output: &bytes.Buffer{}}), nil,
		func(_ *http.Request, status int, _ time.Duration) { observed = status })
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
		w.WriteHeader(http.StatusInternalServerError) // superfluous, ignored by net/http
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if observed != http.StatusOK {
		t.Errorf("observed = %d, want 200", observed)
	}
}
