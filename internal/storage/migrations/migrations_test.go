package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", PostgresURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/db", PostgresURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://already", PostgresURL("pgx5://already"))
}

func TestSQLiteUpDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	url := SQLiteURL(path)

	v, dirty, err := Version(SQLite, url)
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	require.NoError(t, Up(SQLite, url))
	require.NoError(t, Up(SQLite, url), "second up is a no-op")

	v, dirty, err = Version(SQLite, url)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'suspicious_trades'`).Scan(&n))
	assert.Equal(t, 1, n)

	require.NoError(t, Down(SQLite, url))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'suspicious_trades'`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestUnknownDialect(t *testing.T) {
	err := Up(Dialect("mysql"), "mysql://x")
	assert.Error(t, err)
}
