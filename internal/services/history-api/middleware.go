package historyapi

import (
	"time"

	"github.com/NordCoder/Courier/internal/obs"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "history_api_request_duration_seconds",
	Help:    "History API request latency by route and status code.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route", "code"})

// RequestLogger logs each request with trace ids and records its latency.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if id := obs.TraceID(c.Request().Context()); id != "" {
				c.Response().Header().Set(obs.HeaderTraceID, id)
			}

			err := next(c)
			if err != nil {
				// let the error handler pick the final status before logging it
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			elapsed := time.Since(start)
			requestDuration.WithLabelValues(req.Method, c.Path(), statusLabel(status)).Observe(elapsed.Seconds())

			obs.WithTrace(req.Context(), log).Info("http request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", status),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
