package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestLogger writes one debug line per request.
func RequestLogger(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo's error handler fill in the status before logging
				c.Error(err)
			}
			log.Debugw("request",
				"method", c.Request().Method,
				"route", c.Path(),
				"status", c.Response().Status,
				"latency", time.Since(start),
				"ip", c.RealIP(),
				"user_id", currentUserID(c),
			)
			return nil
		}
	}
}
