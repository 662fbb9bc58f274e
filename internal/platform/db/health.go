package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// HealthReport is the body of GET /health/db.
type HealthReport struct {
	Status          string     `json:"status"`
	Error           string     `json:"error,omitempty"`
	Pool            *PoolStats `json:"pool"`
	SchemaVersion   int        `json:"schema_version"`
	PendingVersions []int      `json:"pending_versions,omitempty"`
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

// summarize reduces migration statuses to the latest applied version and the
// versions still pending.
func summarize(sts []MigrationStatus) (latest int, pendingVersions []int) {
	for _, st := range sts {
		if st.Applied {
			if st.Version > latest {
				latest = st.Version
			}
			continue
		}
		pendingVersions = append(pendingVersions, st.Version)
	}
	return latest, pendingVersions
}

// HealthHandler pings the database and reports pool statistics and schema
// version. A server with pending migrations is reported as "degraded".
func HealthHandler(pool *pgxpool.Pool, migrator *Migrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := HealthReport{Status: "healthy", Pool: GetPoolStats(pool)}

		if err := pool.Ping(ctx); err != nil {
			report.Status = "unhealthy"
			report.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}

		if migrator != nil {
			sts, err := migrator.Status(ctx)
			if err != nil {
				report.Status = "degraded"
				report.Error = err.Error()
				return c.JSON(http.StatusOK, report)
			}
			report.SchemaVersion, report.PendingVersions = summarize(sts)
			if len(report.PendingVersions) > 0 {
				report.Status = "degraded"
			}
		}

		return c.JSON(http.StatusOK, report)
	}
}
