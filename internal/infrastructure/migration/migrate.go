package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrator drives schema changes from the SQL pairs under a migrations
// directory, via golang-migrate.
type Migrator struct {
	engine *migrate.Migrate
	logger *zap.Logger
}

// New binds a Migrator to an existing database connection.
func New(db *sql.DB, dir string, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}

	engine, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}

	return &Migrator{engine: engine, logger: logger}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	m.logger.Info("Applying pending migrations")

	changed, err := m.change("up", m.engine.Up)
	if err != nil || !changed {
		return err
	}
	return m.logVersion("Migrations applied")
}

// Down rolls back every applied migration.
func (m *Migrator) Down() error {
	m.logger.Info("Rolling back all migrations")

	changed, err := m.change("down", m.engine.Down)
	if err != nil || !changed {
		return err
	}
	m.logger.Info("Rollback complete")
	return nil
}

// Steps applies n migrations; a negative n rolls back instead.
func (m *Migrator) Steps(n int) error {
	m.logger.Info("Applying migration steps", zap.Int("steps", n))

	changed, err := m.change("steps", func() error { return m.engine.Steps(n) })
	if err != nil || !changed {
		return err
	}
	return m.logVersion("Migration steps applied")
}

// GoTo migrates up or down until the schema sits at version.
func (m *Migrator) GoTo(version uint) error {
	m.logger.Info("Migrating schema", zap.Uint("target", version))

	changed, err := m.change("goto", func() error { return m.engine.Migrate(version) })
	if err != nil || !changed {
		return err
	}
	return m.logVersion("Migration target reached")
}

// change runs one schema action, flattening ErrNoChange into a no-op.
func (m *Migrator) change(action string, apply func() error) (bool, error) {
	switch err := apply(); {
	case errors.Is(err, migrate.ErrNoChange):
		m.logger.Info("Schema already up to date")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("migration %s failed: %w", action, err)
	default:
		return true, nil
	}
}

// Version reports the current schema version and dirty flag. A database
// with no applied migrations reports version 0 and no error.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.engine.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Force stamps the schema version without running any migration files.
// It exists to clear the dirty flag after a failed migration has been
// repaired by hand.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing schema version", zap.Int("version", version))

	if err := m.engine.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Drop removes every object in the database. All data is lost.
func (m *Migrator) Drop() error {
	m.logger.Warn("Dropping database schema")

	if err := m.engine.Drop(); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	m.logger.Info("Database schema dropped")
	return nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.engine.Close()
	if srcErr != nil {
		return fmt.Errorf("close migration source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migration database: %w", dbErr)
	}
	return nil
}

// logVersion reports the version the database landed on after a change.
func (m *Migrator) logVersion(msg string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Info(msg, zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
