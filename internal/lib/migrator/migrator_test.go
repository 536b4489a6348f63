package migrator

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magiclink/migrations"
)

func TestUpSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")

	version, err := Up(migrations.SQLite, "sqlite", SQLiteURL(path))
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	// A second run is a no-op.
	version, err = Up(migrations.SQLite, "sqlite", SQLiteURL(path))
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"users", "accounts", "refresh_tokens"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestPostgresURL(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{dsn: "postgres://u:p@localhost:5432/db?sslmode=disable", want: "pgx5://u:p@localhost:5432/db?sslmode=disable"},
		{dsn: "postgresql://u@db/app", want: "pgx5://u@db/app"},
		{dsn: "pgx5://u@db/app", want: "pgx5://u@db/app"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PostgresURL(tt.dsn))
	}
}
