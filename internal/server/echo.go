package server

import "github.com/labstack/echo/v4"

// MountEcho attaches the router's handlers to an existing echo.Echo using
// Echo's WrapHandler, for embedders that already run an echo server.
func MountEcho(e *echo.Echo, r *Router) {
	h := r.Handler()
	base := r.basePath
	if base == "" {
		e.Any("/*", echo.WrapHandler(h))
		return
	}
	e.Any(base, echo.WrapHandler(h))
	e.Any(base+"/*", echo.WrapHandler(h))
}
