package historyapi

import (
	"net/http"
	"time"

	"github.com/NordCoder/Courier/internal/obs"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewRouter mounts the history routes plus /metrics and /healthz.
func NewRouter(l Ledger, health obs.HealthFunc, log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = HTTPErrorHandler(log)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(RequestLogger(log))

	e.GET("/metrics", echo.WrapHandler(obs.MetricsHandler()))
	e.GET("/healthz", echo.WrapHandler(obs.HealthHandler(health)))

	h := NewController(l, log)
	v1 := e.Group("/v1/history")
	v1.GET("", h.List)
	v1.GET("/:id", h.Get)
	v1.PATCH("/:id/status", h.UpdateStatus)
	return e
}

// NewServer wraps the router in server spans.
func NewServer(cfg ServerConfig, e *echo.Echo) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           obs.HTTPHandler(e, "history-api"),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
