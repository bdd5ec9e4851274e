package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Totals is get_totals()'s single-row result: global aggregates across
// every logged request, successful or not.
type Totals struct {
	TotalRequests         int64      `json:"total_requests"`
	SuccessfulRequests    int64      `json:"successful_requests"`
	FailedRequests        int64      `json:"failed_requests"`
	TotalCostUSD          float64    `json:"total_cost_usd"`
	TotalPromptTokens     int64      `json:"total_prompt_tokens"`
	TotalCompletionTokens int64      `json:"total_completion_tokens"`
	TotalCacheHitTokens   int64      `json:"total_cache_hit_tokens"`
	TotalCacheMissTokens  int64      `json:"total_cache_miss_tokens"`
	AvgLatencyMS          float64    `json:"avg_latency_ms"`
	FirstRequestAt        *time.Time `json:"first_request_at"`
	LastRequestAt         *time.Time `json:"last_request_at"`
}

// GetTotals returns the single-row global aggregate.
func (s *Store) GetTotals(ctx context.Context) (Totals, error) {
	var t Totals
	row := struct {
		TotalRequests         int64
		SuccessfulRequests    int64
		TotalCostUSD          float64
		TotalPromptTokens     int64
		TotalCompletionTokens int64
		TotalCacheHitTokens   int64
		TotalCacheMissTokens  int64
		AvgLatencyMS          float64
		FirstRequestAt        *time.Time
		LastRequestAt         *time.Time
	}{}

	err := s.DB().WithContext(ctx).Model(&RequestLogEntry{}).
		Select(`
			COUNT(*) AS total_requests,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS successful_requests,
			COALESCE(SUM(cost_usd), 0) AS total_cost_usd,
			COALESCE(SUM(prompt_tokens), 0) AS total_prompt_tokens,
			COALESCE(SUM(completion_tokens), 0) AS total_completion_tokens,
			COALESCE(SUM(cache_hit_tokens), 0) AS total_cache_hit_tokens,
			COALESCE(SUM(cache_miss_tokens), 0) AS total_cache_miss_tokens,
			COALESCE(AVG(latency_ms), 0) AS avg_latency_ms
		`).
		Scan(&row).Error
	if err != nil {
		return t, fmt.Errorf("metrics: get_totals: %w", err)
	}

	// MIN/MAX aggregates lose the column's datetime type on sqlite, so the
	// first and last timestamps are read back as typed rows instead.
	if row.TotalRequests > 0 {
		var first, last RequestLogEntry
		if err := s.DB().WithContext(ctx).Select("timestamp").Order("timestamp asc").Take(&first).Error; err != nil {
			return t, fmt.Errorf("metrics: get_totals: %w", err)
		}
		if err := s.DB().WithContext(ctx).Select("timestamp").Order("timestamp desc").Take(&last).Error; err != nil {
			return t, fmt.Errorf("metrics: get_totals: %w", err)
		}
		row.FirstRequestAt, row.LastRequestAt = &first.Timestamp, &last.Timestamp
	}

	t = Totals{
		TotalRequests:         row.TotalRequests,
		SuccessfulRequests:    row.SuccessfulRequests,
		FailedRequests:        row.TotalRequests - row.SuccessfulRequests,
		TotalCostUSD:          row.TotalCostUSD,
		TotalPromptTokens:     row.TotalPromptTokens,
		TotalCompletionTokens: row.TotalCompletionTokens,
		TotalCacheHitTokens:   row.TotalCacheHitTokens,
		TotalCacheMissTokens:  row.TotalCacheMissTokens,
		AvgLatencyMS:          row.AvgLatencyMS,
		FirstRequestAt:        row.FirstRequestAt,
		LastRequestAt:         row.LastRequestAt,
	}
	return t, nil
}

// ProviderSummary is one row of get_provider_summary().
type ProviderSummary struct {
	Provider         string  `json:"provider"`
	TotalRequests    int64   `json:"total_requests"`
	FailedRequests   int64   `json:"failed_requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CacheHitTokens   int64   `json:"cache_hit_tokens"`
	CacheMissTokens  int64   `json:"cache_miss_tokens"`
	CacheHitPercent  float64 `json:"cache_hit_percent"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
}

// GetProviderSummary returns one row per provider with totals,
// failures, token sums, a cache-hit percentage (hit / (hit+miss) * 100,
// one decimal, zero when the denominator is zero), cost sum, and
// average latency.
func (s *Store) GetProviderSummary(ctx context.Context) ([]ProviderSummary, error) {
	var rows []struct {
		Provider         string
		TotalRequests    int64
		SuccessfulCount  int64
		PromptTokens     int64
		CompletionTokens int64
		CacheHitTokens   int64
		CacheMissTokens  int64
		TotalCostUSD     float64
		AvgLatencyMS     float64
	}

	err := s.DB().WithContext(ctx).Model(&RequestLogEntry{}).
		Select(`
			provider,
			COUNT(*) AS total_requests,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS successful_count,
			COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
			COALESCE(SUM(completion_tokens), 0) AS completion_tokens,
			COALESCE(SUM(cache_hit_tokens), 0) AS cache_hit_tokens,
			COALESCE(SUM(cache_miss_tokens), 0) AS cache_miss_tokens,
			COALESCE(SUM(cost_usd), 0) AS total_cost_usd,
			COALESCE(AVG(latency_ms), 0) AS avg_latency_ms
		`).
		Group("provider").
		Order("provider").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("metrics: get_provider_summary: %w", err)
	}

	summaries := make([]ProviderSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, ProviderSummary{
			Provider:         r.Provider,
			TotalRequests:    r.TotalRequests,
			FailedRequests:   r.TotalRequests - r.SuccessfulCount,
			PromptTokens:     r.PromptTokens,
			CompletionTokens: r.CompletionTokens,
			CacheHitTokens:   r.CacheHitTokens,
			CacheMissTokens:  r.CacheMissTokens,
			CacheHitPercent:  cacheHitPercent(r.CacheHitTokens, r.CacheMissTokens),
			TotalCostUSD:     r.TotalCostUSD,
			AvgLatencyMS:     r.AvgLatencyMS,
		})
	}
	return summaries, nil
}

func cacheHitPercent(hit, miss int64) float64 {
	denom := hit + miss
	if denom == 0 {
		return 0
	}
	pct := float64(hit) / float64(denom) * 100
	return math.Round(pct*10) / 10
}

// RoutingBreakdown is one row of get_routing_breakdown().
type RoutingBreakdown struct {
	Layer        string  `json:"layer"`
	RuleName     string  `json:"rule_name"`
	Provider     string  `json:"provider"`
	Requests     int64   `json:"requests"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// GetRoutingBreakdown groups by (layer, rule_name, provider) over
// successful requests only.
func (s *Store) GetRoutingBreakdown(ctx context.Context) ([]RoutingBreakdown, error) {
	var breakdown []RoutingBreakdown

	err := s.DB().WithContext(ctx).Model(&RequestLogEntry{}).
		Select(`
			layer,
			rule_name,
			provider,
			COUNT(*) AS requests,
			COALESCE(SUM(cost_usd), 0) AS total_cost_usd
		`).
		Where("success = ?", true).
		Group("layer, rule_name, provider").
		Order("layer, rule_name, provider").
		Scan(&breakdown).Error
	if err != nil {
		return nil, fmt.Errorf("metrics: get_routing_breakdown: %w", err)
	}
	return breakdown, nil
}

// HourlyBucket is one element of get_hourly_series(hours).
type HourlyBucket struct {
	HourStart    time.Time `json:"hour_start"`
	Requests     int64     `json:"requests"`
	TotalCostUSD float64   `json:"total_cost_usd"`
	TotalTokens  int64     `json:"total_tokens"`
}

// GetHourlySeries buckets every logged request in the last `hours`
// hours by wall-clock hour. Bucketing happens in Go rather than
// driver-specific date-trunc SQL, so the same code runs unchanged
// against sqlite, postgres, and mysql.
func (s *Store) GetHourlySeries(ctx context.Context, hours int) ([]HourlyBucket, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	var rows []RequestLogEntry
	err := s.DB().WithContext(ctx).
		Select("timestamp", "cost_usd", "prompt_tokens", "completion_tokens").
		Where("timestamp >= ?", since).
		Order("timestamp asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("metrics: get_hourly_series: %w", err)
	}

	buckets := map[time.Time]*HourlyBucket{}
	for _, r := range rows {
		key := r.Timestamp.Truncate(time.Hour)
		b, ok := buckets[key]
		if !ok {
			b = &HourlyBucket{HourStart: key}
			buckets[key] = b
		}
		b.Requests++
		b.TotalCostUSD += r.CostUSD
		b.TotalTokens += int64(r.PromptTokens + r.CompletionTokens)
	}

	return sortedHourlyBuckets(buckets), nil
}

func sortedHourlyBuckets(buckets map[time.Time]*HourlyBucket) []HourlyBucket {
	out := make([]HourlyBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourStart.Before(out[j].HourStart) })
	return out
}

// DailyTotal is one element of get_daily_totals(days).
type DailyTotal struct {
	Day          string  `json:"day"` // YYYY-MM-DD, local calendar day
	Requests     int64   `json:"requests"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	TotalTokens  int64   `json:"total_tokens"`
}

// GetDailyTotals buckets the last `days` days by local calendar day
// (the machine's local timezone, not UTC).
func (s *Store) GetDailyTotals(ctx context.Context, days int) ([]DailyTotal, error) {
	since := time.Now().AddDate(0, 0, -days)

	var rows []RequestLogEntry
	err := s.DB().WithContext(ctx).
		Select("timestamp", "cost_usd", "prompt_tokens", "completion_tokens").
		Where("timestamp >= ?", since).
		Order("timestamp asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("metrics: get_daily_totals: %w", err)
	}

	buckets := map[string]*DailyTotal{}
	var order []string
	for _, r := range rows {
		key := r.Timestamp.Local().Format("2006-01-02")
		b, ok := buckets[key]
		if !ok {
			b = &DailyTotal{Day: key}
			buckets[key] = b
			order = append(order, key)
		}
		b.Requests++
		b.TotalCostUSD += r.CostUSD
		b.TotalTokens += int64(r.PromptTokens + r.CompletionTokens)
	}

	sort.Strings(order)
	out := make([]DailyTotal, 0, len(order))
	for _, key := range order {
		out = append(out, *buckets[key])
	}
	return out, nil
}

// GetRecent returns the most recently logged requests, newest first.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]RequestLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []RequestLogEntry
	err := s.DB().WithContext(ctx).
		Order("timestamp desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("metrics: get_recent: %w", err)
	}
	return entries, nil
}
