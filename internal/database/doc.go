// Package database provides the GORM-backed connection pool manager used
// by the metrics store: pool sizing, a background liveness check, and
// transaction helpers with retry on transient errors (deadlock,
// serialization failure, connection reset).
package database
