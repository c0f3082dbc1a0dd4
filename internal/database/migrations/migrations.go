// Package migrations applies the SQL files under migrations/ with golang-migrate.
// Version 1 is the schema. Later versions only insert demo data and are
// applied on request.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"ms-ordering/internal/logger"
)

// SchemaVersion is the last migration that only touches schema.
const SchemaVersion uint = 1

type MigrateOptions struct {
	MigrationsDir string
	// SeedData also applies the demo data migrations.
	SeedData bool
}

func DefaultOptions() MigrateOptions {
	return MigrateOptions{MigrationsDir: "./migrations"}
}

// Status is the state recorded in schema_migrations.
type Status struct {
	Version uint
	Dirty   bool
	// Empty is true before the first migration ran.
	Empty bool
}

type Runner struct {
	db   *sql.DB
	opts MigrateOptions
	log  *logger.Logger
	m    *migrate.Migrate
}

func NewRunner(db *sql.DB, opts MigrateOptions, log *logger.Logger) *Runner {
	return &Runner{db: db, opts: opts, log: log}
}

func (r *Runner) migrator() (*migrate.Migrate, error) {
	if r.m != nil {
		return r.m, nil
	}
	if _, err := os.Stat(r.opts.MigrationsDir); err != nil {
		return nil, fmt.Errorf("migrations directory %s: %w", r.opts.MigrationsDir, err)
	}
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+r.opts.MigrationsDir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	r.m = m
	return m, nil
}

// Status reports the current migration version.
func (r *Runner) Status() (Status, error) {
	m, err := r.migrator()
	if err != nil {
		return Status{}, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Empty: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read migration version: %w", err)
	}
	return Status{Version: version, Dirty: dirty}, nil
}

// RunMigrations brings the schema to SchemaVersion, or to the latest version
// when seed data is requested. A dirty version left by a crashed run is forced
// clean first.
func (r *Runner) RunMigrations() error {
	m, err := r.migrator()
	if err != nil {
		return err
	}
	st, err := r.Status()
	if err != nil {
		return err
	}
	if st.Dirty {
		r.log.Warn("MIGRATE", fmt.Sprintf("Version %d is dirty, forcing it clean", st.Version))
		if err := m.Force(int(st.Version)); err != nil {
			return fmt.Errorf("force version %d: %w", st.Version, err)
		}
	}

	switch {
	case r.opts.SeedData:
		r.log.Info("MIGRATE", "Applying schema and seed migrations")
		err = m.Up()
	case st.Empty || st.Version < SchemaVersion:
		r.log.Info("MIGRATE", fmt.Sprintf("Applying schema migrations up to %d", SchemaVersion))
		err = m.Migrate(SchemaVersion)
	default:
		r.log.Info("MIGRATE", fmt.Sprintf("Schema already at version %d", st.Version))
		return nil
	}
	if ignoreNoChange(err) != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if st, err = r.Status(); err != nil {
		return err
	}
	r.log.Info("MIGRATE", fmt.Sprintf("Schema version is now %d", st.Version))
	return nil
}

// MigrateDown rolls back every migration.
func (r *Runner) MigrateDown() error {
	m, err := r.migrator()
	if err != nil {
		return err
	}
	if err := ignoreNoChange(m.Down()); err != nil {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return nil
}

// MigrateTo moves up or down to version.
func (r *Runner) MigrateTo(version uint) error {
	m, err := r.migrator()
	if err != nil {
		return err
	}
	if err := ignoreNoChange(m.Migrate(version)); err != nil {
		return fmt.Errorf("migrate to %d: %w", version, err)
	}
	return nil
}

func (r *Runner) Close() error {
	if r.m == nil {
		return nil
	}
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
