package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// database/sql driver registrations for Open. The "sqlite" driver
	// comes from the same pure-Go engine the GORM dialector in
	// internal/metrics uses, so both layers share one driver.
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

//go:embed migrations
var migrationFS embed.FS

const migrationsTable = "schema_migrations"

// Driver selects which embedded migration set and database driver a
// Migrator uses. It mirrors the metrics store's driver selection.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// ParseDriver maps the config's driver string, and its common aliases,
// onto a Driver.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	case "mysql", "mariadb":
		return DriverMySQL, nil
	}
	return "", fmt.Errorf("unsupported metrics driver %q", s)
}

// Status describes one embedded migration relative to the database's
// current schema version.
type Status struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Migrator binds golang-migrate to one database connection and the
// embedded migration set for its driver. The metrics store only ever
// calls Up at startup; Down, DownAll, Version, and Status exist for
// the migrate subcommand's manual operations.
type Migrator struct {
	driver Driver
	m      *migrate.Migrate
	db     *sql.DB
}

// Open connects to the database at dsn and prepares the embedded
// migration source for driver.
func Open(driver Driver, dsn string) (*Migrator, error) {
	db, err := sql.Open(sqlDriverName(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("migration: opening %s database: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: pinging %s database: %w", driver, err)
	}

	dbDriver, err := databaseDriver(driver, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}

	src, err := iofs.New(migrationFS, "migrations/"+string(driver))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(driver), dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}

	return &Migrator{driver: driver, m: m, db: db}, nil
}

// sqlDriverName returns the registered database/sql driver name for a
// Driver. "sqlite" is the pure-Go driver blank-imported above; the
// "sqlite3" name would be the cgo one.
func sqlDriverName(d Driver) string {
	switch d {
	case DriverPostgres:
		return "postgres"
	case DriverMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

func databaseDriver(d Driver, db *sql.DB) (database.Driver, error) {
	switch d {
	case DriverPostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	case DriverMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: migrationsTable})
	default:
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: migrationsTable})
	}
}

// Up applies every pending migration. An already-current schema is not
// an error.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: down: %w", err)
	}
	return nil
}

// DownAll rolls back every applied migration.
func (m *Migrator) DownAll(ctx context.Context) error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: down all: %w", err)
	}
	return nil
}

// Version reports the current schema version and whether an
// interrupted run left it dirty. A never-migrated database reports
// (0, false, nil).
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration: reading version: %w", err)
	}
	return version, dirty, nil
}

// Status lists every embedded migration for the driver with its
// applied state against the database's current version.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	available, err := m.availableMigrations()
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(available))
	for _, mig := range available {
		statuses = append(statuses, Status{
			Version: mig.version,
			Name:    mig.name,
			Applied: mig.version <= current,
			Dirty:   dirty && mig.version == current,
		})
	}
	return statuses, nil
}

// Close releases the migrate instance and the database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

type migrationFile struct {
	version uint
	name    string
}

// availableMigrations parses the embedded NNNNNN_name.up.sql filenames
// for this driver, sorted by version.
func (m *Migrator) availableMigrations() ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations/"+string(m.driver))
	if err != nil {
		return nil, fmt.Errorf("migration: reading embedded migrations: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(rest, ".up.sql"),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
