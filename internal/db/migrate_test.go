package db

import (
	"bytes"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(
		`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestNewDB_AppliesAllMigrations(t *testing.T) {
	db, _ := setupTestDB(t)
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	latest, err := GetLatestMigrationVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)
	assert.True(t, tableExists(t, db, "sessions"))
	assert.True(t, tableExists(t, db, "input_parameters"))
}

func TestMigrateDownAndBack(t *testing.T) {
	db, _ := setupTestDB(t)
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	require.NoError(t, db.MigrateDown(migrations))
	version, _, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, tableExists(t, db, "input_parameters"))
	assert.True(t, tableExists(t, db, "sessions"))

	require.NoError(t, db.MigrateTo(migrations, 2))
	assert.True(t, tableExists(t, db, "input_parameters"))

	// Already at the target.
	require.NoError(t, db.MigrateUp(migrations))
	require.NoError(t, db.MigrateTo(migrations, 2))
}

func TestMigrateVersion_Unmigrated(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer db.Close()
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}

func TestMigrateForce(t *testing.T) {
	db, _ := setupTestDB(t)
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	require.NoError(t, db.MigrateForce(migrations, 1))
	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestGetLatestMigrationVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"000003_c.up.sql":   {Data: []byte("SELECT 1;")},
		"000003_c.down.sql": {Data: []byte("SELECT 1;")},
		"000010_j.up.sql":   {Data: []byte("SELECT 1;")},
		"README.md":         {Data: []byte("notes")},
	}
	latest, err := GetLatestMigrationVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(10), latest)

	_, err = GetLatestMigrationVersion(fstest.MapFS{})
	assert.Error(t, err)
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand(&out, []string{"up"}, path))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "Latest available: 2")
	assert.Contains(t, out.String(), "up to date")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"down"}, path))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "1 version(s) behind")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"version", "2"}, path))
	assert.Contains(t, out.String(), "Migrated to version 2")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"help"}, path))
	assert.Contains(t, out.String(), "Usage: carm-server migrate")

	for _, args := range [][]string{
		nil,
		{"sideways"},
		{"version"},
		{"force", "minus-one"},
	} {
		assert.Error(t, RunMigrateCommand(&out, args, path), "args %v", args)
	}
}
