package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clawgate/clawgate/internal/config"
	"github.com/clawgate/clawgate/internal/database"
	"github.com/clawgate/clawgate/internal/migration"
)

// Store is the durable request-log store: a single shared GORM
// connection plus the pool manager wrapping it. One Store is
// constructed by internal/app.New and held on the App handle for
// the lifetime of the process.
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
	driver string
}

// Init opens the configured backend, runs the embedded migration, and
// wraps the connection in a database.PoolManager. Failure here is fatal
// at startup: a metrics store that can't open is a configuration error,
// not a metrics error - only per-request storage failures are swallowed,
// never bootstrap failures.
func Init(cfg config.MetricsConfig, logger *zap.Logger) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	dialector, err := openDialector(driver, cfg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: opening %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return nil, fmt.Errorf("metrics: setting WAL mode: %w", err)
		}
		if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
			return nil, fmt.Errorf("metrics: setting synchronous mode: %w", err)
		}
	}

	migrator, err := migration.NewMigratorFromMetricsConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("metrics: building migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(context.Background()); err != nil {
		return nil, fmt.Errorf("metrics: applying schema migration: %w", err)
	}

	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	return &Store{pool: pool, logger: logger.With(zap.String("component", "metrics_store")), driver: driver}, nil
}

func openDialector(driver string, cfg config.MetricsConfig) (gorm.Dialector, error) {
	switch driver {
	case "sqlite":
		path := config.ResolveDBPath(cfg)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return sqlite.Open(path + "?_pragma=busy_timeout(5000)"), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires metrics.dsn")
		}
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("mysql driver requires metrics.dsn")
		}
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unknown metrics driver %q", driver)
	}
}

// LogRequest persists one request_log row. Any storage failure here is
// swallowed with a warning log rather than propagated - the caller has
// already received (or failed to receive) its HTTP response by the time
// this runs, and a telemetry write must never be allowed to affect that
// outcome.
func (s *Store) LogRequest(ctx context.Context, entry RequestLogEntry) {
	if err := s.pool.DB().WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Warn("failed to write request log entry",
			zap.String("trace_id", entry.TraceID),
			zap.String("provider", entry.Provider),
			zap.Error(err),
		)
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// DB exposes the wrapped *gorm.DB for the aggregation queries in
// queries.go.
func (s *Store) DB() *gorm.DB {
	return s.pool.DB()
}
