package migrator

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Up applies every pending migration found in dir of fsys to the database
// behind databaseURL and returns the resulting schema version.
func Up(fsys fs.FS, dir, databaseURL string) (uint, error) {
	const op = "migrator.Up"

	source, err := iofs.New(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("%s: source: %w", op, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return 0, fmt.Errorf("%s: init: %w", op, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("%s: version: %w", op, err)
	}

	return version, nil
}

// SQLiteURL builds a golang-migrate URL for a sqlite database file.
func SQLiteURL(storagePath string) string {
	return "sqlite3://" + storagePath
}

// PostgresURL rewrites a postgres DSN to the pgx5 scheme golang-migrate expects.
func PostgresURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
