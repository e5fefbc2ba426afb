package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded schema for the dialect. It uses a
// separate connection so the main pool is not affected.
func RunMigrations(dialect Dialect, dsn string) error {
	var (
		migrateDB *sql.DB
		driver    database.Driver
		err       error
	)
	switch dialect {
	case DialectSQLite:
		migrateDB, err = sql.Open("sqlite", dsn)
		if err != nil {
			return fmt.Errorf("open migration database: %w", err)
		}
		driver, err = sqlite.WithInstance(migrateDB, &sqlite.Config{})
	case DialectMySQL:
		migrateDB, err = sql.Open("mysql", withMultiStatements(dsn))
		if err != nil {
			return fmt.Errorf("open migration database: %w", err)
		}
		driver, err = migratemysql.WithInstance(migrateDB, &migratemysql.Config{})
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}
	defer migrateDB.Close()
	if err != nil {
		return fmt.Errorf("create %s driver: %w", dialect, err)
	}

	d, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, string(dialect), driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
