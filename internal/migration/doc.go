// Package migration applies the metrics store's schema migrations
// against SQLite, PostgreSQL, or MySQL, using golang-migrate with the
// dialect-specific SQL files embedded under migrations/.
//
// The store has exactly one versioned migration (000001_create_request_log):
// create the request_log table plus its timestamp/provider/layer
// indexes. internal/metrics.Store calls Up automatically at
// construction time; Down, DownAll, Version, and Status back the
// migrate subcommand in cmd/clawgate, so an operator can inspect or
// roll back schema state without booting the gateway itself.
package migration
