package metrics

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/clawgate/clawgate/internal/config"
	"github.com/clawgate/clawgate/internal/database"
)

func TestOpenDialector_RequiresDSNForCentralizedBackends(t *testing.T) {
	_, err := openDialector("postgres", config.MetricsConfig{})
	assert.Error(t, err)

	_, err = openDialector("mysql", config.MetricsConfig{})
	assert.Error(t, err)

	_, err = openDialector("bogus", config.MetricsConfig{})
	assert.Error(t, err)
}

type storageFailure struct{}

func (storageFailure) Error() string { return "simulated storage failure" }

// TestLogRequest_SwallowsStorageFailures: a storage failure is logged
// and swallowed, never returned to the caller. Exercised against a
// mocked database/sql driver (github.com/DATA-DOG/go-sqlmock) whose
// INSERT expectation fails, so the real write call errors.
func TestLogRequest_SwallowsStorageFailures(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO .*request_log.*").WillReturnError(storageFailure{})
	mock.ExpectRollback()

	db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	pool, err := database.NewPoolManager(db, database.PoolConfig{MaxIdleConns: 1, MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)

	s := &Store{pool: pool, logger: zap.NewNop(), driver: "postgres"}

	assert.NotPanics(t, func() {
		s.LogRequest(context.Background(), RequestLogEntry{
			TraceID: "abc", Timestamp: time.Now(), Provider: "openai", Success: true,
		})
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
