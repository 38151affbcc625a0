package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/kupapos/kupa/internal/database/migrations"
)

// Migrate applies any pending schema migrations for the given driver
// ("mysql" or "sqlite").  The SQL files are embedded in the binary.
func Migrate(db *sql.DB, driverName string) error {
	var (
		driver database.Driver
		err    error
	)
	switch driverName {
	case "mysql":
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case "sqlite":
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driverName)
	}
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Files, driverName)
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, driverName, driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
