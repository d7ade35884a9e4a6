// Package api exposes a read-only HTTP debug/status surface alongside the
// binary RPC server (§4.12 is the control plane; this is observability
// only — nothing here mutates queue or server state).
package api

import (
	"fmt"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/nzbcore/gonzbd/internal/api/controllers"
	"github.com/nzbcore/gonzbd/internal/app"
)

// Server wraps an echo instance bound to one app.Context.
type Server struct {
	echo *echo.Echo
	app  *app.Context
}

// NewServer builds the echo instance and registers every route, but does
// not start listening — callers drive that via ListenAndServe.
func NewServer(appCtx *app.Context) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			appCtx.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	statusCtrl := &controllers.StatusController{App: appCtx}

	e.GET("/healthz", statusCtrl.Healthz)
	e.GET("/status", statusCtrl.Status)
	e.GET("/queue", statusCtrl.Queue)
	e.GET("/servers", statusCtrl.Servers)

	return &Server{echo: e, app: appCtx}
}

// ListenAndServe blocks serving on port (or "8080" if empty).
func (s *Server) ListenAndServe(port string) error {
	if port == "" {
		port = "8080"
	}
	return s.echo.Start(fmt.Sprintf(":%s", port))
}
