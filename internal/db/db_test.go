package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "seen.db")

	conn, err := OpenSQLite(path)
	require.NoError(t, err)
	defer conn.Close()

	applied, err := Migrate(context.Background(), conn, goose.DialectSQLite3)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	var mode string
	require.NoError(t, conn.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var name string
	require.NoError(t, conn.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'seen_posts'",
	).Scan(&name))
	assert.Equal(t, "seen_posts", name)

	again, err := Migrate(context.Background(), conn, goose.DialectSQLite3)
	require.NoError(t, err)
	assert.Zero(t, again)
}
