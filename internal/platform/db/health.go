package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is a snapshot of connection pool usage.
type PoolStats struct {
	Total       int32  `json:"total"`
	Idle        int32  `json:"idle"`
	InUse       int32  `json:"in_use"`
	Max         int32  `json:"max"`
	Acquires    int64  `json:"acquires"`
	AcquireWait string `json:"acquire_wait"`
}

// Stats reads the current pool counters.
func Stats(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		Total:       s.TotalConns(),
		Idle:        s.IdleConns(),
		InUse:       s.AcquiredConns(),
		Max:         s.MaxConns(),
		Acquires:    s.AcquireCount(),
		AcquireWait: s.AcquireDuration().String(),
	}
}

// HealthHandler pings the database with a short deadline and reports pool
// usage alongside the result.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unavailable",
				"error":  err.Error(),
				"pool":   Stats(pool),
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "ok",
			"pool":   Stats(pool),
		})
	}
}
