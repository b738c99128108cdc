package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/transact-messaging/internal/pkg/httputil"
	"github.com/redis/go-redis/v9"
)

// HealthStatus is the overall health report served at /healthz.
type HealthStatus struct {
	Status string                    `json:"status"`
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck reports one dependency's health.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker pings the Store and rate-limiter backend. Either dependency
// may be nil (e.g. a memory-backed RateLimiter has nothing to ping), in
// which case that check reports "not_configured" rather than "down".
type HealthChecker struct {
	db        *sql.DB
	redis     *redis.Client
	startTime time.Time
}

// NewHealthChecker creates a HealthChecker. redisClient may be nil when the
// rate limiter backend is "memory".
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient, startTime: time.Now()}
}

// HandleHealth always answers 200; the body's status field conveys health.
// Use /healthz/ready for a probe that reflects readiness in the status code.
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status: overallStatus(checks),
		Uptime: time.Since(hc.startTime).String(),
		Checks: checks,
	})
}

// HandleReadiness answers 503 once any critical dependency is down.
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runChecks(r.Context())
	status := overallStatus(checks)
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]interface{}{"status": status, "checks": checks})
}

func (hc *HealthChecker) runChecks(ctx context.Context) map[string]ComponentCheck {
	checks := make(map[string]ComponentCheck, 2)
	checks["store"] = hc.checkDB(ctx)
	checks["ratelimiter"] = hc.checkRedis(ctx)
	return checks
}

func (hc *HealthChecker) checkDB(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := hc.db.PingContext(pingCtx); err != nil {
		return ComponentCheck{Status: "down", Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return ComponentCheck{Status: "up", Latency: time.Since(start).String()}
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redis == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := hc.redis.Ping(pingCtx).Err(); err != nil {
		return ComponentCheck{Status: "down", Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return ComponentCheck{Status: "up", Latency: time.Since(start).String()}
}

func overallStatus(checks map[string]ComponentCheck) string {
	status := "healthy"
	for _, c := range checks {
		if c.Status == "down" {
			return "unhealthy"
		}
		if c.Status == "degraded" {
			status = "degraded"
		}
	}
	return status
}
