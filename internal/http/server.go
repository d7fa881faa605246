package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"investimento/internal/cache"
	"investimento/internal/core"
	"investimento/internal/export"
	applog "investimento/internal/log"
	"investimento/internal/metrics"
	"investimento/internal/middleware/ratelimit"
	"investimento/internal/middleware/security"
	"investimento/internal/middleware/trace"
	appweb "investimento/web"
)

// Options configures a Server. Zero values take defaults.
type Options struct {
	Engine  *core.Engine
	Encoder *export.Encoder
	Logger  *applog.Logger

	// MaxMonths caps the projection length accepted from clients (0 = no cap).
	MaxMonths          int
	RateLimitPerMinute int
	CacheCleanup       time.Duration

	// TrustedProxies are CIDRs, besides loopback and private ranges, whose
	// X-Forwarded-For header is believed.
	TrustedProxies []string
}

type Server struct {
	http.Server
	templates *template.Template
	engine    *core.Engine
	encoder   *export.Encoder
	maxMonths int

	logger     *applog.Logger
	structured *applog.StructuredLogger
	metrics    *metrics.Metrics
	caches     *cache.Manager
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	tracer     *trace.Middleware
	startedAt  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
// Shutdown must be called to stop background cleanup.
func NewServer(addr string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Engine == nil {
		opts.Engine, _ = core.NewEngine(core.DefaultEngineConfig())
	}
	if opts.Encoder == nil {
		opts.Encoder = export.NewEncoder(export.DefaultEncoderConfig())
	}
	if opts.CacheCleanup <= 0 {
		opts.CacheCleanup = 10 * time.Minute
	}

	logger := opts.Logger.WithComponent(applog.ComponentHTTP)
	mux := http.NewServeMux()

	s := &Server{
		engine:     opts.Engine,
		encoder:    opts.Encoder,
		maxMonths:  opts.MaxMonths,
		logger:     logger,
		structured: applog.NewStructuredLogger(opts.Logger),
		metrics:    metrics.New(opts.Encoder.Cache().Stats),
		caches:     cache.NewManager(opts.Logger.Logger.With(applog.FieldComponent, applog.ComponentCache)),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:   security.NewDetector(),
		startedAt:  time.Now(),
	}

	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}

	s.caches.Register("csv", opts.Encoder.Cache())
	s.caches.StartCleanup(opts.CacheCleanup)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	} else {
		s.templates = t
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("POST /calculate", limited(http.HandlerFunc(s.handleCalculate)))
	mux.Handle("GET /projection.csv", limited(http.HandlerFunc(s.handleDownloadCSV)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var handler http.Handler = mux
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	s.tracer = trace.NewMiddleware(opts.Logger, s.detector.ExtractClientIP, s.observeRequest)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s
}

func (s *Server) observeRequest(r *http.Request, status int, d time.Duration) {
	route := routeLabel(r.URL.Path)
	s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	s.metrics.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimitRejected.Inc()
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	TooManyRequestsError("Rate limit exceeded. Please try again later.").Write(w)
}

// Metrics exposes the server's collectors.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
