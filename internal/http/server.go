package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second
	// requestTimeout bounds store access for a single API call.
	requestTimeout = 7 * time.Second
)

// Server wraps http.Server with the ledger API routes and middleware.
type Server struct {
	http.Server
	svc            *services.LedgerService
	logger         *log.Logger
	metrics        metrics.Collector
	metricsHandler http.Handler
	limiter        *ratelimit.Limiter
	detector       *security.Detector
	tracer         *trace.Middleware
	now            func() time.Time
	rpm            int
	events         EventCircuit

	shutdownOnce sync.Once
}

type Option func(*Server)

// WithLogger sets the base logger handed to request handlers.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request metrics and serves gatherer on /metrics.
func WithMetrics(m metrics.Collector, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
		if gatherer != nil {
			s.metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		}
	}
}

// WithRateLimit limits each client IP to rpm API requests per minute.
func WithRateLimit(rpm int) Option {
	return func(s *Server) { s.rpm = rpm }
}

// EventCircuit reports the breaker state of the record event publisher.
type EventCircuit interface {
	CircuitState() gobreaker.State
}

// WithEventCircuit makes /readyz report when record events are paused.
func WithEventCircuit(c EventCircuit) Option {
	return func(s *Server) { s.events = c }
}

// WithClock replaces the clock used for default record dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.LedgerService, opts ...Option) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: readTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
		svc:      svc,
		metrics:  metrics.Nop{},
		detector: security.NewDetector(),
		now:      time.Now,
		rpm:      ratelimit.DefaultConfig().RequestsPerMinute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: s.rpm})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/records", s.handleRecords)
	mux.HandleFunc("/api/series", s.handleSeries)
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	mux.HandleFunc("/", s.handleNotFound)

	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, s.observe)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited, isProbe)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.Middleware(s.logger, trace.RequestID)(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

// Shutdown stops the rate limiter and drains the HTTP server. Safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) observe(r *http.Request, status int, d time.Duration) {
	s.metrics.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), status, d)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later", trace.RequestID(r)).Write(w)
}

// isProbe exempts health checks and scrapes from rate limiting.
func isProbe(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}

// routeLabel keeps the metrics label set bounded.
func routeLabel(path string) string {
	switch path {
	case "/api/records", "/api/series", "/healthz", "/readyz", "/metrics":
		return path
	}
	if strings.HasPrefix(path, "/api/") {
		return "/api/other"
	}
	return "other"
}
