package db_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/mango-runner/internal/db"
	"github.com/vrsandeep/mango-runner/internal/testutil"
)

func TestMigrationsCreateTables(t *testing.T) {
	database := testutil.SetupTestDB(t)

	for _, table := range []string{"runners", "runner_kv", "runner_repositories", "library_entries"} {
		var name string
		err := database.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestLibraryEntryUniqueness(t *testing.T) {
	database := testutil.SetupTestDB(t)

	_, err := database.Exec("INSERT INTO library_entries (runner_id, content_id) VALUES ('r', 'c')")
	require.NoError(t, err)
	_, err = database.Exec("INSERT INTO library_entries (runner_id, content_id) VALUES ('r', 'c')")
	assert.Error(t, err)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	database, err := db.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, db.RunMigrations(database))
	require.NoError(t, db.RunMigrations(database))

	var foreignKeys int
	require.NoError(t, database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}
