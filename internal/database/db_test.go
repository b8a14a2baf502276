package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A fresh deploy opens the databases exactly like cmd/server does and relies
// on Migrate to create every table. A typo'd or missing name must fail loudly
// instead of booting with an empty database.
func TestMigrateCreatesTablesForNamedDatabase(t *testing.T) {
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "pos.db"),
		Profile: ProfileLedger,
		Name:    "pos",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM drawers").Scan(&count))
	assert.Equal(t, 0, count)

	// Re-running is harmless: schema statements are CREATE IF NOT EXISTS.
	require.NoError(t, db.Migrate())
}

func TestMigrateCacheSchema(t *testing.T) {
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM notifications").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestMigrateRejectsUnregisteredName(t *testing.T) {
	for _, name := range []string{"", "pos.db", "bogus"} {
		db, err := New(Config{
			Path:    filepath.Join(t.TempDir(), "x.db"),
			Profile: ProfileStandard,
			Name:    name,
		})
		require.NoError(t, err)

		err = db.Migrate()
		require.Error(t, err, "name %q", name)
		assert.Contains(t, err.Error(), "no schema registered")
		_ = db.Close()
	}
}
