package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/learnboard/pkg/db"
)

const healthTimeout = 2 * time.Second

// Health reports database, schema and redis reachability. Redis is only
// checked when configured.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := s.pingDB(ctx); err != nil {
		checks["database"] = "down"
		healthy = false
	} else {
		checks["database"] = "ok"
		switch err := s.probeSchema(ctx); {
		case err == nil:
			checks["schema"] = "ok"
		case db.IsMissingTableErr(err):
			checks["schema"] = "missing"
			healthy = false
		default:
			checks["schema"] = "down"
			healthy = false
		}
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "down"
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

func (s *Server) pingDB(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// probeSchema touches the event log so an unmigrated database reports unhealthy.
func (s *Server) probeSchema(ctx context.Context) error {
	var n int64
	return s.db.WithContext(ctx).Raw("SELECT COUNT(1) FROM (SELECT 1 FROM learning_events LIMIT 1) probe").Scan(&n).Error
}
