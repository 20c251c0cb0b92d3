package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/markplatform/gateway/cmd/markgw/internal/auth"
	"github.com/markplatform/gateway/cmd/markgw/internal/logging"
	gwmiddleware "github.com/markplatform/gateway/cmd/markgw/internal/middleware"
	"github.com/markplatform/gateway/cmd/markgw/internal/proxy"
	"github.com/markplatform/gateway/cmd/markgw/internal/routing"
	"github.com/markplatform/gateway/cmd/markgw/internal/telemetry"
)

// RouterOptions controls the construction of the gateway router.
// Table, Resolver, Dispatcher and Forwarder are required; the rest have defaults.
type RouterOptions struct {
	Table      *routing.Table
	Resolver   *routing.Resolver
	Dispatcher *auth.Dispatcher
	Forwarder  *proxy.Forwarder

	Logger  *zap.Logger
	Metrics *telemetry.Metrics

	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string

	// InfoPath defaults to /v1/info.
	InfoPath    string
	InfoVersion int

	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			gwmiddleware.RequestIDHeader,
		},
		ExposedHeaders:   []string{gwmiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy,
// the local endpoints and the forwarding catch-all.
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(gwmiddleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))
	r.Use(gwmiddleware.Instrument(opts.Metrics))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	infoPath := opts.InfoPath
	if infoPath == "" {
		infoPath = "/v1/info"
	}
	r.With(gwmiddleware.Label("info")).Get(infoPath, infoHandler(opts.InfoVersion))

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.With(gwmiddleware.Label("health")).Get("/health", healthHandler)

	if opts.MetricsHandler != nil {
		metricsPath := opts.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.With(gwmiddleware.Label("metrics")).Handle(metricsPath, opts.MetricsHandler)
	}

	h := &forwardHandler{
		resolver:  opts.Resolver,
		forwarder: opts.Forwarder,
		logger:    logger,
	}
	r.With(
		gwmiddleware.MatchRoute(opts.Table, h.fail),
		gwmiddleware.Authenticate(opts.Dispatcher, h.fail),
	).Handle("/*", h)

	return r
}

// NewH2CHandler wraps the router with an h2c server so HTTP/2 clients can
// connect without TLS.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
