package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/platform/auth"
	"github.com/clinops/clinops/internal/platform/correlation"
)

// Logger writes one structured line per request, carrying the correlation
// bundle so a request's log line joins up with the domain events it caused.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			cc := correlation.FromContext(req.Context())
			userID := auth.UserIDFromContext(req.Context())

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			evt.
				Str("request_id", cc.RequestID).
				Str("correlation_id", cc.CorrelationID).
				Str("user_id", userID.String()).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
