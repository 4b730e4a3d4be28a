// Package repotest provides a migrated SQLite-backed repository client for tests.
package repotest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/medscan/internal/repository"
)

// DSN returns a SQLite DSN for a database file inside dir with foreign keys on.
func DSN(dir string) string {
	return "file:" + filepath.Join(dir, "medscan.db") +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// Logger discards output so test runs stay quiet.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewClient opens a fresh migrated database under t.TempDir and closes it on cleanup.
func NewClient(t testing.TB) *repository.Client {
	t.Helper()
	ctx := context.Background()
	client, err := repository.Open(ctx, repository.Config{
		Driver: repository.DriverSQLite,
		DSN:    DSN(t.TempDir()),
	}, Logger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, client.Migrate(ctx))
	return client
}
