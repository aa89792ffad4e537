package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayanobu/nicofetch/internal/api/controllers"
	"github.com/ayanobu/nicofetch/internal/app"
)

func RegisterRoutes(e *echo.Echo, appCtx *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			appCtx.Logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	statusCtrl := &controllers.StatusController{App: appCtx}

	// Status endpoints (current download, history)
	e.GET("/status", statusCtrl.HandleStatus)
	e.GET("/history", statusCtrl.HandleHistory)

	// Prometheus scrape endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
