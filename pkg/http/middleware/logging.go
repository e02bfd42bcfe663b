package middleware

import (
	"log"
	"time"

	"github.com/labstack/echo/v4"
)

const slowRequest = 500 * time.Millisecond

// RequestLogging logs HTTP requests. Scrape and websocket endpoints are
// skipped, they are long-lived or high-frequency and would drown the log.
func RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == "/metrics" || path == "/ws" {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			latency := time.Since(start)

			tag := ""
			if latency > slowRequest {
				tag = " SLOW"
			}
			log.Printf("[%s] %s %s - %d (%s)%s",
				c.Request().Method,
				path,
				c.RealIP(),
				c.Response().Status,
				latency,
				tag,
			)
			return err
		}
	}
}
