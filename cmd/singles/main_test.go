package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSeedCommand(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "seed.db"))

	out, err := run(t, "seed", "--count", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 3 tables")

	out, err = run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing seeded")
}

func TestMigrateCommand(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "migrate.db"))

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema up to date (0 tables)")

	out, err = run(t, "migrate", "--db", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "has no schema")
}

func TestCommandsRejectBadConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")

	_, err := run(t, "seed", "--db", "oracle")
	assert.ErrorContains(t, err, "unsupported DB_DRIVER")

	_, err = run(t, "migrate", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "env file")
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://app:xxxxx@db:5432/singles", maskDSN("postgres://app:s3cret@db:5432/singles"))
	assert.Equal(t, "host=local***", maskDSN("host=localhost password=s3cret"))
	assert.Equal(t, "***", maskDSN("short"))
}
