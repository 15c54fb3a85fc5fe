package httpapi

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const requestIDKey = "request_id"

// Middleware wraps a handler.
type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

// Chain applies middlewares so that the first one is the outermost.
func Chain(h fasthttp.RequestHandler, middlewares ...Middleware) fasthttp.RequestHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID returns the id assigned to rctx by the RequestIDs middleware.
func RequestID(rctx *fasthttp.RequestCtx) string {
	id, _ := rctx.UserValue(requestIDKey).(string)
	return id
}

// RequestIDs honors an incoming X-Request-ID header or generates a UUID,
// and echoes it on the response.
func RequestIDs() Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(rctx *fasthttp.RequestCtx) {
			id := string(rctx.Request.Header.Peek(HeaderRequestID))
			if id == "" {
				id = uuid.NewString()
			}
			rctx.SetUserValue(requestIDKey, id)
			rctx.Response.Header.Set(HeaderRequestID, id)
			next(rctx)
		}
	}
}

// AccessLog logs one line per request.
func AccessLog(logger *zap.Logger) Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(rctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(rctx)

			status := rctx.Response.StatusCode()
			fields := []zap.Field{
				zap.ByteString("method", rctx.Method()),
				zap.ByteString("path", rctx.Path()),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestID(rctx)),
				zap.String("remote_addr", rctx.RemoteIP().String()),
			}

			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("request", fields...)
			case status >= http.StatusBadRequest:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
		}
	}
}

// Recover turns a panic into a 500 response.
func Recover(logger *zap.Logger, onError func(*fasthttp.RequestCtx, error)) Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(rctx *fasthttp.RequestCtx) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				buf := make([]byte, 8192)
				buf = buf[:runtime.Stack(buf, false)]
				logger.Error("recovered from panic",
					zap.Any("panic", rec),
					zap.ByteString("method", rctx.Method()),
					zap.ByteString("path", rctx.Path()),
					zap.String("request_id", RequestID(rctx)),
					zap.ByteString("stack", buf),
				)

				onError(rctx, goerrors.New(fmt.Sprintf("internal server error: %v", rec), goerrors.CategoryInternal).
					WithCode(http.StatusInternalServerError).
					WithTextCode("INTERNAL_ERROR"))
			}()
			next(rctx)
		}
	}
}

// HTTPMetrics are the request counters and latency histogram.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates the collectors and registers them with reg when it is not nil.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}

	return m
}

// Instrument records a request under the route label.
func (m *HTTPMetrics) Instrument(route string) Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		if m == nil {
			return next
		}
		return func(rctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(rctx)

			method := string(rctx.Method())
			m.requests.WithLabelValues(method, route, strconv.Itoa(rctx.Response.StatusCode())).Inc()
			m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		}
	}
}
