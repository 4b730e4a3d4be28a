package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// WatchDatabaseHealth mirrors the database health check into the overall gRPC
// health status. It checks once immediately, then every interval, and returns
// when ctx is done.
func WatchDatabaseHealth(ctx context.Context, db HealthChecker, hs *health.Server, interval, timeout time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	current := grpc_health_v1.HealthCheckResponse_UNKNOWN
	check := func() {
		next := grpc_health_v1.HealthCheckResponse_SERVING
		if err := db.HealthCheck(ctx, timeout); err != nil {
			if ctx.Err() != nil {
				return
			}
			next = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			logger.Warn("health.db.unavailable", "error", err)
		}
		if next != current {
			logger.Info("health.status.changed", "from", current.String(), "to", next.String())
			current = next
			hs.SetServingStatus("", next)
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
