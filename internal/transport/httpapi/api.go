// Package httpapi exposes the user service and health checks over fasthttp.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-user-cache/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds a request when no timeout is configured.
const DefaultRequestTimeout = 5 * time.Second

// HandlerFunc serves a request under a context bounded by the request timeout.
// A returned error is rendered as a goerrors.ErrorResponse.
type HandlerFunc func(ctx context.Context, rctx *fasthttp.RequestCtx) error

// API owns the router and the cross cutting request handling.
type API struct {
	router         *Router
	base           context.Context
	requestTimeout time.Duration
	debug          bool
	logger         *zap.Logger
	metrics        *HTTPMetrics
}

// Option configures an API.
type Option func(*API)

// WithBaseContext sets the parent of every request context.
func WithBaseContext(ctx context.Context) Option {
	return func(a *API) {
		if ctx != nil {
			a.base = ctx
		}
	}
}

// WithRequestTimeout sets the per request deadline.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(a *API) {
		if timeout > 0 {
			a.requestTimeout = timeout
		}
	}
}

// WithDebug exposes error sources in responses.
func WithDebug(debug bool) Option {
	return func(a *API) { a.debug = debug }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics records request metrics per route.
func WithMetrics(metrics *HTTPMetrics) Option {
	return func(a *API) { a.metrics = metrics }
}

// NewAPI creates an API with no routes.
func NewAPI(opts ...Option) *API {
	a := &API{
		base:           context.Background(),
		requestTimeout: DefaultRequestTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.router = NewRouter(a.renderError)
	return a
}

// Route registers h for method and pattern; name labels its metrics.
func (a *API) Route(method, pattern, name string, h HandlerFunc) {
	a.router.Handle(method, pattern, a.metrics.Instrument(name)(a.adapt(h)))
}

// Handler returns the root handler with request ids, panic recovery and access logging.
func (a *API) Handler() fasthttp.RequestHandler {
	return Chain(a.router.Handler,
		RequestIDs(),
		AccessLog(a.logger.Named("access")),
		Recover(a.logger, a.renderError),
	)
}

func (a *API) adapt(h HandlerFunc) fasthttp.RequestHandler {
	return func(rctx *fasthttp.RequestCtx) {
		ctx, cancel := context.WithTimeout(a.base, a.requestTimeout)
		defer cancel()

		if err := h(ctx, rctx); err != nil {
			a.renderError(rctx, err)
		}
	}
}

func (a *API) renderError(rctx *fasthttp.RequestCtx, err error) {
	writeError(rctx, err, a.debug, a.logger)
}

// RegisterHealth mounts the liveness and readiness checks under prefix + "/health".
func (a *API) RegisterHealth(prefix string, checker *health.Checker) {
	base := prefix + "/health"

	a.Route(http.MethodGet, base+"/_alive", "health_alive", func(_ context.Context, rctx *fasthttp.RequestCtx) error {
		writeJSON(rctx, http.StatusOK, checker.Alive())
		return nil
	})

	ready := func(verbose bool) HandlerFunc {
		return func(ctx context.Context, rctx *fasthttp.RequestCtx) error {
			report := checker.Ready(ctx, verbose)
			status := http.StatusOK
			if !report.Healthy {
				status = http.StatusInternalServerError
			}
			writeJSON(rctx, status, report)
			return nil
		}
	}

	a.Route(http.MethodGet, base+"/_health", "health_ready", ready(false))
	a.Route(http.MethodGet, base+"/health-details", "health_details", ready(true))
}

// RegisterMetrics serves the Prometheus exposition for gatherer at path.
func (a *API) RegisterMetrics(path string, gatherer prometheus.Gatherer) {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	a.router.Handle(http.MethodGet, path, h)
}
