// Package metrics implements the durable, append-only request log: the
// GORM schema, the cache-aware cost formula, and the aggregation
// queries the gateway's stats endpoints read from.
package metrics

import "time"

// RequestLogEntry mirrors one row of request_log: every field the
// dispatcher records about a single attempt, successful or not. Indexed
// on timestamp, provider, and layer per the migration in
// internal/migration/migrations/*/000001_create_request_log.up.sql.
// Rows are immutable once written; the store has no update or delete
// paths.
type RequestLogEntry struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	TraceID          string    `gorm:"column:trace_id;size:64"`
	Timestamp        time.Time `gorm:"column:timestamp;index:idx_request_log_timestamp"`
	Provider         string    `gorm:"column:provider;size:64;index:idx_request_log_provider"`
	Model            string    `gorm:"column:model;size:128"`
	Layer            string    `gorm:"column:layer;size:32;index:idx_request_log_layer"`
	RuleName         string    `gorm:"column:rule_name;size:128"`
	PromptTokens     int       `gorm:"column:prompt_tokens"`
	CompletionTokens int       `gorm:"column:completion_tokens"`
	CacheHitTokens   int       `gorm:"column:cache_hit_tokens"`
	CacheMissTokens  int       `gorm:"column:cache_miss_tokens"`
	CostUSD          float64   `gorm:"column:cost_usd"`
	LatencyMS        int64     `gorm:"column:latency_ms"`
	Success          bool      `gorm:"column:success"`
	Error            string    `gorm:"column:error"`
}

// TableName pins the GORM model to the name the embedded migration
// creates, rather than GORM's default pluralization guess.
func (RequestLogEntry) TableName() string {
	return "request_log"
}
