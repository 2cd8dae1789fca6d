// Package schema creates and drops the destination tables of the email jobs
// on SQL backends with golang-migrate.
package schema

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/BartekS5/crm-migrate/pkg/logger"
	"github.com/BartekS5/crm-migrate/pkg/models"
	"github.com/BartekS5/crm-migrate/pkg/store"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/database/sqlserver"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationsTable keeps golang-migrate's bookkeeping apart from the CRM's own
// schema_migrations table.
const MigrationsTable = "crm_migrate_schema_migrations"

var (
	// ErrUnknownTable is returned for a table no migration creates.
	ErrUnknownTable = errors.New("no schema migration creates table")
	// ErrPartialSchema is returned when some but not all tables of the email
	// schema exist, which a migration cannot repair safely.
	ErrPartialSchema = errors.New("email schema is partially present")
)

// Tables lists the tables created by the embedded migrations.
var Tables = []string{models.EmailIndexTable, models.EmailCacheTable}

// Manager implements store.SchemaManager for SQL databases.
type Manager struct {
	DB      *sql.DB
	Dialect store.Dialect

	inspector store.SchemaInspector
	logger    *logrus.Entry
	mig       *migrate.Migrate
}

func NewManager(db *sql.DB, dialect store.Dialect) *Manager {
	return &Manager{
		DB:        db,
		Dialect:   dialect,
		inspector: store.NewSQLStore(db, dialect),
		logger:    logger.WithFields(logrus.Fields{"component": "schema", "dialect": string(dialect)}),
	}
}

// migrator builds the migrate instance on first use. It is never closed:
// closing it would close the shared *sql.DB.
func (m *Manager) migrator() (*migrate.Migrate, error) {
	if m.mig != nil {
		return m.mig, nil
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+string(m.Dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source: %w", err)
	}

	var dbDriver database.Driver
	switch m.Dialect {
	case store.DialectPostgres:
		dbDriver, err = postgres.WithInstance(m.DB, &postgres.Config{MigrationsTable: MigrationsTable})
	case store.DialectSQLServer:
		dbDriver, err = sqlserver.WithInstance(m.DB, &sqlserver.Config{MigrationsTable: MigrationsTable})
	case store.DialectSQLite:
		dbDriver, err = sqlite.WithInstance(m.DB, &sqlite.Config{MigrationsTable: MigrationsTable})
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", m.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migrate driver: %w", m.Dialect, err)
	}

	mig, err := migrate.NewWithInstance("iofs", sourceDriver, string(m.Dialect), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.mig = mig
	return mig, nil
}

// EnsureTables creates the email tables when none of them exist and
// returns the tables that exist afterwards but did not before.
func (m *Manager) EnsureTables(ctx context.Context, tables []store.TableSpec) ([]string, error) {
	for _, t := range tables {
		if !known(t.Name) {
			return nil, fmt.Errorf("%w %s; create it before migrating", ErrUnknownTable, t.Name)
		}
	}

	before, err := m.existing(ctx)
	if err != nil {
		return nil, err
	}
	switch len(before) {
	case len(Tables):
		return nil, nil
	case 0:
	default:
		return nil, fmt.Errorf("%w: found %v of %v", ErrPartialSchema, keys(before), Tables)
	}

	mig, err := m.migrator()
	if err != nil {
		return nil, err
	}
	upErr := mig.Up()
	if errors.Is(upErr, migrate.ErrNoChange) {
		upErr = nil
	}

	after, err := m.existing(ctx)
	if err != nil {
		return nil, err
	}
	var created []string
	for _, t := range Tables {
		if after[t] {
			created = append(created, t)
		}
	}

	if upErr != nil {
		m.logger.WithError(upErr).Error("schema migration failed")
		return created, fmt.Errorf("schema migration failed: %w", upErr)
	}
	version, _, _ := mig.Version()
	m.logger.WithFields(logrus.Fields{"version": version, "tables": created}).Info("destination schema created")
	return created, nil
}

// DropTables rolls the email schema back. tables must name email tables.
func (m *Manager) DropTables(ctx context.Context, tables []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, t := range tables {
		if !known(t) {
			return fmt.Errorf("%w %s", ErrUnknownTable, t)
		}
	}
	if len(tables) == 0 {
		return nil
	}

	mig, err := m.migrator()
	if err != nil {
		return err
	}
	if version, dirty, verr := mig.Version(); verr == nil && dirty {
		m.logger.WithField("version", version).Warn("schema is dirty, forcing version before rollback")
		if err := mig.Force(int(version)); err != nil {
			return fmt.Errorf("force schema version %d: %w", version, err)
		}
	}
	if err := mig.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("schema rollback failed: %w", err)
	}
	m.logger.WithField("tables", tables).Info("destination schema rolled back")
	return nil
}

func (m *Manager) existing(ctx context.Context) (map[string]bool, error) {
	found := make(map[string]bool)
	for _, t := range Tables {
		ok, err := m.inspector.TableExists(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			found[t] = true
		}
	}
	return found, nil
}

func known(table string) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}

func keys(set map[string]bool) []string {
	var out []string
	for _, t := range Tables {
		if set[t] {
			out = append(out, t)
		}
	}
	return out
}
