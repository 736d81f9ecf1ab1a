package postgres

import (
	"errors"
	"fmt"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx driver for golang_migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"     // support file scheme for golang_migrate

	"github.com/verilayer/verilayer/log"
)

// migrateURL rewrites a libpq-style connection URL into the scheme of the
// golang_migrate pgx driver.
func migrateURL(connString string) (string, error) {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connString, scheme) {
			return "pgx5://" + strings.TrimPrefix(connString, scheme), nil
		}
	}
	return "", fmt.Errorf("unsupported connection string, expected a postgres:// URL")
}

// Migrate applies all pending migrations found at source, e.g.
// "file://storage/migrations".
func Migrate(source, connString string, logger *log.Logger) error {
	dbURL, err := migrateURL(connString)
	if err != nil {
		return err
	}
	m, err := migrate.New(source, dbURL)
	if err != nil {
		logger.Error("migrator failed to start",
			"error", err,
		)
		return err
	}
	defer m.Close()

	switch err = m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("no migrations needed to be applied")
	case err != nil:
		logger.Error("migrations failed",
			"error", err,
		)
		return err
	default:
		logger.Info("migrations completed")
	}
	return nil
}
