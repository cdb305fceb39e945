package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/platform/auth"
	"github.com/carebenefits/platform/internal/platform/lock"
)

// ConcurrentRequestTTL bounds how long a crashed request can hold its scope.
const ConcurrentRequestTTL = 30 * time.Second

// PreventConcurrent rejects a request with 409 while the same user already has
// one in flight for scope. Unauthenticated requests pass through. A lock
// store outage fails open and is logged.
func PreventConcurrent(locker lock.Locker, scope string, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			uid := auth.UserIDFromContext(ctx)
			if uid == uuid.Nil {
				return next(c)
			}

			release, ok, err := locker.Acquire(ctx, scope+":"+uid.String(), ConcurrentRequestTTL)
			if err != nil {
				logger.Warn().Err(err).Str("scope", scope).Str("user_id", uid.String()).
					Msg("concurrent request lock unavailable")
				return next(c)
			}
			if !ok {
				return echo.NewHTTPError(http.StatusConflict, "a request of this kind is already in progress")
			}
			defer release()
			return next(c)
		}
	}
}
