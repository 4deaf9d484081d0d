package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	got, err := migrateURL("postgres://lemur:secret@db:5432/lemur?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://lemur:secret@db:5432/lemur?sslmode=disable", got)

	got, err = migrateURL("postgresql://db/lemur")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://db/lemur", got)

	_, err = migrateURL("host=db user=lemur")
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2)
}

func TestEmailIsNullable(t *testing.T) {
	up, err := migrationsFS.ReadFile("migrations/000002_nullable_email.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "ALTER COLUMN email DROP NOT NULL")
}
