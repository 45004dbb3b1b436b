package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pinger 命令审计库（gormrepo.Repository 实现）
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker 数据库检查：遥测写入用的 pgx 连接池与命令审计库
type DatabaseChecker struct {
	pool  *pgxpool.Pool
	audit Pinger
}

// NewDatabaseChecker audit 可为 nil
func NewDatabaseChecker(pool *pgxpool.Pool, audit Pinger) *DatabaseChecker {
	return &DatabaseChecker{pool: pool, audit: audit}
}

func (c *DatabaseChecker) Name() string { return "database" }

// Check 执行健康检查
func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.pool.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("telemetry pool ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats := c.pool.Stat()
	utilization := 0.0
	if stats.MaxConns() > 0 {
		utilization = float64(stats.AcquiredConns()) / float64(stats.MaxConns())
	}
	details := map[string]interface{}{
		"total_conns":    stats.TotalConns(),
		"idle_conns":     stats.IdleConns(),
		"acquired_conns": stats.AcquiredConns(),
		"max_conns":      stats.MaxConns(),
		"utilization":    fmt.Sprintf("%.1f%%", utilization*100),
	}

	status, message := StatusHealthy, "ok"
	if utilization > 0.9 {
		// 样本批量写入排队，但命令仍可下发
		status, message = StatusDegraded, "connection pool near limit"
	}
	if c.audit != nil {
		if err := c.audit.Ping(ctx); err != nil {
			status, message = StatusDegraded, fmt.Sprintf("command audit unavailable: %v", err)
			details["audit"] = "down"
		} else {
			details["audit"] = "up"
		}
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
