package handler

import (
	xhttp "OptiFlow/pkg/http"

	"github.com/labstack/echo/v4"
)

// Routes composes several route registrars into the single Handler the HTTP
// server expects.
type Routes struct {
	handlers []xhttp.Handler
}

// NewRoutes bundles handlers.
func NewRoutes(handlers ...xhttp.Handler) *Routes {
	return &Routes{handlers: handlers}
}

// RegisterRoutes registers every bundled handler.
func (r *Routes) RegisterRoutes(e *echo.Echo) {
	for _, h := range r.handlers {
		h.RegisterRoutes(e)
	}
}
