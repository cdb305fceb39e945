package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Check is an additional dependency probe reported by HealthHandler, such as
// the Redis lock store.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthReport is the body returned by the /health/db endpoint.
type HealthReport struct {
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Pool   *PoolStats        `json:"pool,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// runChecks pings every dependency and returns "ok" or the error text per name.
func runChecks(ctx context.Context, checks []Check) (map[string]string, bool) {
	if len(checks) == 0 {
		return nil, true
	}
	out := make(map[string]string, len(checks))
	healthy := true
	for _, ch := range checks {
		if err := ch.Ping(ctx); err != nil {
			out[ch.Name] = err.Error()
			healthy = false
			continue
		}
		out[ch.Name] = "ok"
	}
	return out, healthy
}

func HealthHandler(pool *pgxpool.Pool, checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := HealthReport{Status: "healthy", Pool: GetPoolStats(pool)}
		var ok bool
		report.Checks, ok = runChecks(ctx, checks)

		if err := pool.Ping(ctx); err != nil {
			report.Status = "unhealthy"
			report.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		if !ok {
			report.Status = "degraded"
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
