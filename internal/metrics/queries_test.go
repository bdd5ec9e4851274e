package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clawgate/clawgate/internal/database"
)

// newTestStore builds a Store against an in-memory sqlite database,
// using AutoMigrate rather than the embedded golang-migrate migration -
// appropriate for a unit test, where internal/migration's versioned
// schema discipline buys nothing over the model's own gorm tags.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&RequestLogEntry{}))

	pool, err := database.NewPoolManager(db, database.PoolConfig{
		MaxIdleConns: 2,
		MaxOpenConns: 2,
	}, zap.NewNop())
	require.NoError(t, err)

	return &Store{pool: pool, logger: zap.NewNop(), driver: "sqlite"}
}

func seedEntry(t *testing.T, s *Store, e RequestLogEntry) {
	t.Helper()
	require.NoError(t, s.DB().Create(&e).Error)
}

func TestStore_LogRequestAndGetRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.LogRequest(ctx, RequestLogEntry{
		TraceID: "t1", Timestamp: time.Now(), Provider: "deepseek-chat", Model: "deepseek-chat",
		Layer: "static", RuleName: "subagent", PromptTokens: 100, CompletionTokens: 50,
		CostUSD: 0.001, LatencyMS: 120, Success: true,
	})
	s.LogRequest(ctx, RequestLogEntry{
		TraceID: "t2", Timestamp: time.Now(), Provider: "gemini-flash", Model: "gemini-flash",
		Layer: "fallback", RuleName: "", PromptTokens: 10, CompletionTokens: 5,
		CostUSD: 0.0001, LatencyMS: 80, Success: false, Error: "timeout",
	})

	recent, err := s.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "t2", recent[0].TraceID) // most recently inserted comes first
}

func TestStore_GetTotals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	seedEntry(t, s, RequestLogEntry{Timestamp: now, Provider: "a", PromptTokens: 10, CompletionTokens: 5, CostUSD: 0.01, LatencyMS: 100, Success: true})
	seedEntry(t, s, RequestLogEntry{Timestamp: now.Add(time.Minute), Provider: "b", PromptTokens: 20, CompletionTokens: 10, CostUSD: 0.02, LatencyMS: 200, Success: false})

	totals, err := s.GetTotals(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), totals.TotalRequests)
	require.Equal(t, int64(1), totals.SuccessfulRequests)
	require.Equal(t, int64(1), totals.FailedRequests)
	require.InDelta(t, 0.03, totals.TotalCostUSD, 1e-9)
	require.InDelta(t, 150, totals.AvgLatencyMS, 1e-9)
	require.NotNil(t, totals.FirstRequestAt)
	require.NotNil(t, totals.LastRequestAt)
}

func TestStore_GetProviderSummary_CacheHitPercent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedEntry(t, s, RequestLogEntry{Timestamp: time.Now(), Provider: "openai", Success: true, CacheHitTokens: 300, CacheMissTokens: 700, CostUSD: 0.5, LatencyMS: 100})
	seedEntry(t, s, RequestLogEntry{Timestamp: time.Now(), Provider: "openai", Success: false, CostUSD: 0, LatencyMS: 50})
	seedEntry(t, s, RequestLogEntry{Timestamp: time.Now(), Provider: "anthropic", Success: true, CostUSD: 0.1, LatencyMS: 300})

	summaries, err := s.GetProviderSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byName := map[string]ProviderSummary{}
	for _, ps := range summaries {
		byName[ps.Provider] = ps
	}

	require.Equal(t, int64(2), byName["openai"].TotalRequests)
	require.Equal(t, int64(1), byName["openai"].FailedRequests)
	require.InDelta(t, 30.0, byName["openai"].CacheHitPercent, 1e-9)
	require.InDelta(t, 0.0, byName["anthropic"].CacheHitPercent, 1e-9)
}

func TestStore_GetRoutingBreakdown_SuccessOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedEntry(t, s, RequestLogEntry{Timestamp: time.Now(), Provider: "a", Layer: "static", RuleName: "r1", Success: true, CostUSD: 0.01})
	seedEntry(t, s, RequestLogEntry{Timestamp: time.Now(), Provider: "a", Layer: "static", RuleName: "r1", Success: true, CostUSD: 0.02})
	seedEntry(t, s, RequestLogEntry{Timestamp: time.Now(), Provider: "b", Layer: "heuristic", RuleName: "reasoning", Success: false, CostUSD: 0})

	breakdown, err := s.GetRoutingBreakdown(ctx)
	require.NoError(t, err)
	require.Len(t, breakdown, 1)
	require.Equal(t, "static", breakdown[0].Layer)
	require.Equal(t, "r1", breakdown[0].RuleName)
	require.Equal(t, int64(2), breakdown[0].Requests)
	require.InDelta(t, 0.03, breakdown[0].TotalCostUSD, 1e-9)
}

func TestStore_GetHourlySeries_BucketsByHour(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Hour)
	seedEntry(t, s, RequestLogEntry{Timestamp: base.Add(5 * time.Minute), Provider: "a", PromptTokens: 10, CostUSD: 0.01})
	seedEntry(t, s, RequestLogEntry{Timestamp: base.Add(50 * time.Minute), Provider: "a", PromptTokens: 20, CostUSD: 0.02})

	buckets, err := s.GetHourlySeries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, int64(2), buckets[0].Requests)
	require.InDelta(t, 0.03, buckets[0].TotalCostUSD, 1e-9)
}

func TestStore_GetDailyTotals_BucketsByLocalDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	seedEntry(t, s, RequestLogEntry{Timestamp: now, Provider: "a", PromptTokens: 10, CostUSD: 0.01})

	totals, err := s.GetDailyTotals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	require.Equal(t, now.Local().Format("2006-01-02"), totals[0].Day)
}
