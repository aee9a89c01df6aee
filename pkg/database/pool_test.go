package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetPool(t *testing.T) {
	t.Helper()
	require.NoError(t, CloseSharedDatabase())
	t.Cleanup(func() {
		_ = CloseSharedDatabase()
		poolNow = time.Now
	})
}

func TestGetDatabase_ReusesConnection(t *testing.T) {
	resetPool(t)
	ctx := context.Background()
	cfg := DatabaseConfig{Driver: "memory"}

	first, err := GetDatabase(ctx, cfg)
	require.NoError(t, err)
	second, err := GetDatabase(ctx, cfg)
	require.NoError(t, err)
	assert.Same(t, first, second)

	stats := GetConnectionStats()
	assert.Equal(t, "connected", stats["status"])
	assert.Equal(t, 1, stats["reused"])
}

func TestGetDatabase_MemoryNeverExpires(t *testing.T) {
	resetPool(t)
	ctx := context.Background()
	now := time.Now()
	poolNow = func() time.Time { return now }

	first, err := GetDatabase(ctx, DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)

	now = now.Add(2 * poolMaxAge)
	second, err := GetDatabase(ctx, DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestGetDatabase_RecreatesOnChangeOrExpiry(t *testing.T) {
	resetPool(t)
	ctx := context.Background()
	now := time.Now()
	poolNow = func() time.Time { return now }

	sqliteCfg := DatabaseConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "pool.db")}
	first, err := GetDatabase(ctx, sqliteCfg)
	require.NoError(t, err)

	now = now.Add(poolMaxAge + time.Minute)
	second, err := GetDatabase(ctx, sqliteCfg)
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	third, err := GetDatabase(ctx, DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryDatabase{}, third)
	assert.Equal(t, "memory", GetConnectionStats()["driver"])
}

func TestGetDatabase_BadConfigLeavesNoConnection(t *testing.T) {
	resetPool(t)
	_, err := GetDatabase(context.Background(), DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Equal(t, "no_connection", GetConnectionStats()["status"])
}
