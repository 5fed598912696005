package database

import (
	"testing"
	"testing/fstest"

	"fleet-backend/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingMigrationsOrderAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/002_b.sql":        {Data: []byte("SELECT 2;")},
		"sql/001_a.sql":        {Data: []byte("SELECT 1;")},
		"sql/003_reset_db.sql": {Data: []byte("DROP TABLE x;")},
		"sql/README.md":        {Data: []byte("notes")},
		"sql/004_c.sql":        {Data: []byte("SELECT 4;")},
	}

	pending, err := PendingMigrations(fsys, "sql", map[string]bool{"002_b.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "004_c.sql"}, pending)
}

func TestPendingMigrationsMissingDir(t *testing.T) {
	_, err := PendingMigrations(fstest.MapFS{}, "nope", nil)
	assert.Error(t, err)
}

func TestEmbeddedMigrationsAreListed(t *testing.T) {
	pending, err := PendingMigrations(migrations.FS, ".", nil)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Equal(t, "001_rental_payments.sql", pending[0])
}
