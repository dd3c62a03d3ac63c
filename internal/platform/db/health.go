package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const pingTimeout = 5 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

// PoolStats is the JSON view of pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

type healthReport struct {
	Status string     `json:"status"`
	Pool   *PoolStats `json:"pool"`
}

// HealthHandler answers /health/db: 200 when a ping succeeds within
// pingTimeout, 503 otherwise. The driver error is never echoed.
func HealthHandler(p Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		report := healthReport{Status: "healthy", Pool: &PoolStats{}}
		if stat := p.Stat(); stat != nil {
			report.Pool = &PoolStats{
				TotalConns:      stat.TotalConns(),
				IdleConns:       stat.IdleConns(),
				AcquiredConns:   stat.AcquiredConns(),
				MaxConns:        stat.MaxConns(),
				AcquireCount:    stat.AcquireCount(),
				AcquireDuration: stat.AcquireDuration().String(),
			}
		}

		code := http.StatusOK
		if err := p.Ping(ctx); err != nil {
			report.Status, code = "unhealthy", http.StatusServiceUnavailable
		} else {
			report.Pool.Healthy = true
		}
		return c.JSON(code, report)
	}
}
