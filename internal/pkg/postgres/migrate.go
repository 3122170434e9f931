package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrate applies all pending migrations from the filesystem to the
// database at url.
func Migrate(url string, migrations fs.FS) error {
	source, err := iofs.New(migrations, ".")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	return runUp(migrator)
}

// MigrateDir applies migrations from a directory on disk instead of
// the embedded set. Used when a deployment overrides the schema files.
func MigrateDir(url, dir string) error {
	migrator, err := migrate.New("file://"+dir, url)
	if err != nil {
		return fmt.Errorf("create migrator for %s: %w", dir, err)
	}
	return runUp(migrator)
}

func runUp(migrator *migrate.Migrate) error {
	defer func() {
		srcErr, dbErr := migrator.Close()
		if srcErr != nil {
			slog.Error("close migration source", "error", srcErr)
		}
		if dbErr != nil {
			slog.Error("close migration database", "error", dbErr)
		}
	}()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
