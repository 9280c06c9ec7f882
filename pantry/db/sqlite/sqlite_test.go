package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_FileUsesWAL(t *testing.T) {
	db, err := Connect(filepath.Join(t.TempDir(), "users.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var mode string
	require.NoError(t, db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := Connect(":memory:", 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE t (email TEXT UNIQUE)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO t VALUES ('a@b.co')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO t VALUES ('a@b.co')`)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(nil))
}

func TestBuildDSN(t *testing.T) {
	assert.Equal(t, "a.db?_busy_timeout=5000&_foreign_keys=on", buildDSN("a.db", DefaultOptions()))
	assert.Equal(t, "a.db?mode=ro&_busy_timeout=5000&_foreign_keys=on", buildDSN("a.db?mode=ro", DefaultOptions()))
	assert.Equal(t, "a.db", buildDSN("a.db", Options{}))
}
