// Package migrations embeds the database schema so binaries and tests do not depend on the working directory.
package migrations

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed *.sql
var files embed.FS

// New returns a migrator for the embedded schema against the given database URL.
func New(connStr string) (*migrate.Migrate, error) {
	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, connStr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize migrations")
	}
	return m, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func Up(connStr string) error {
	m, err := New(connStr)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "failed to apply migrations")
	}
	return nil
}
