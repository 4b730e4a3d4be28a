package server_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/medscan/internal/repository/repotest"
	"github.com/joseph-ayodele/medscan/internal/server"
)

type toggleDB struct {
	down atomic.Bool
}

func (d *toggleDB) HealthCheck(context.Context, time.Duration) error {
	if d.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func grpcStatus(t *testing.T, hs *health.Server) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN
	}
	return resp.GetStatus()
}

func TestWatchDatabaseHealth_FollowsDatabase(t *testing.T) {
	db := &toggleDB{}
	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_UNKNOWN)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.WatchDatabaseHealth(ctx, db, hs, 5*time.Millisecond, time.Second, repotest.Logger())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return grpcStatus(t, hs) == grpc_health_v1.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	db.down.Store(true)
	require.Eventually(t, func() bool {
		return grpcStatus(t, hs) == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	db.down.Store(false)
	require.Eventually(t, func() bool {
		return grpcStatus(t, hs) == grpc_health_v1.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestWatchDatabaseHealth_StartsNotServingWhenDown(t *testing.T) {
	db := &toggleDB{}
	db.down.Store(true)
	hs := health.NewServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.WatchDatabaseHealth(ctx, db, hs, time.Hour, time.Second, repotest.Logger())

	require.Eventually(t, func() bool {
		return grpcStatus(t, hs) == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)
	assert.NotEqual(t, grpc_health_v1.HealthCheckResponse_SERVING, grpcStatus(t, hs))
}
