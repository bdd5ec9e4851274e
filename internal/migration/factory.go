package migration

import (
	"fmt"

	"github.com/clawgate/clawgate/internal/config"
)

// NewMigratorFromMetricsConfig builds a Migrator for the metrics
// store's schema, resolving the connection string the same way the
// store itself does: for the default embedded sqlite driver, a
// file-based DSN built from config.ResolveDBPath (cfg.DSN is not used);
// for postgres and mysql, cfg.DSN, which is then required.
func NewMigratorFromMetricsConfig(cfg config.MetricsConfig) (*Migrator, error) {
	name := cfg.Driver
	if name == "" {
		name = "sqlite"
	}
	driver, err := ParseDriver(name)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if driver == DriverSQLite {
		dsn = SQLiteDSN(config.ResolveDBPath(cfg))
	} else if dsn == "" {
		return nil, fmt.Errorf("metrics driver %q requires metrics.dsn", name)
	}

	return Open(driver, dsn)
}

// SQLiteDSN builds the file-backed DSN for the embedded driver. _pragma
// is the pure-Go driver's parameter syntax; the mattn style
// (_foreign_keys=on) is rejected as an unknown parameter.
func SQLiteDSN(path string) string {
	return "file:" + path + "?mode=rwc&_pragma=foreign_keys(1)"
}
