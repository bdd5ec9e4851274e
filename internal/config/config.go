// Package config loads and validates the gateway's YAML configuration,
// including ${VAR} / ${VAR:-default} environment substitution.
package config

import "time"

// Config is the fully parsed, environment-expanded configuration document.
type Config struct {
	Server         ServerConfig              `yaml:"server"`
	Providers      map[string]ProviderConfig `yaml:"providers"`
	FallbackChain  []string                  `yaml:"fallback_chain"`
	StaticRules    RuleSetConfig             `yaml:"static_rules"`
	HeuristicRules RuleSetConfig             `yaml:"heuristic_rules"`
	LLMClassifier  LLMClassifierConfig       `yaml:"llm_classifier"`
	Health         HealthConfig              `yaml:"health"`
	Metrics        MetricsConfig             `yaml:"metrics"`
	Tracing        TracingConfig             `yaml:"tracing"`
}

// TracingConfig configures the optional OTLP exporter (internal/obs's
// ambient tracer). Leaving Enabled false or OTLPEndpoint empty installs
// a TracerProvider with no exporter attached - spans are still created,
// nothing leaves the process.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
}

// Pricing holds USD-per-million-token rates. CacheRead defaults to Input
// when absent; that default is applied at cost-calculation time, not here,
// so the zero value remains distinguishable from "absent" for callers that
// care (see metrics.CalcCost).
type Pricing struct {
	Input     float64  `yaml:"input"`
	Output    float64  `yaml:"output"`
	CacheRead *float64 `yaml:"cache_read,omitempty"`
}

// ProviderConfig is the immutable-after-load description of one upstream.
type ProviderConfig struct {
	Name      string        `yaml:"-"` // set to the map key at load time
	Dialect   string        `yaml:"dialect"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Tier      string        `yaml:"tier"`
	Pricing   Pricing       `yaml:"pricing"`
	Weight    int           `yaml:"weight"`
	Priority  int           `yaml:"priority"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Dialect tag values.
const (
	DialectOpenAICompat    = "openai-compat"
	DialectGoogleGenAI     = "google-genai"
	DialectAnthropicCompat = "anthropic-compat"
)

// Tier tag values.
const (
	TierDefault   = "default"
	TierReasoning = "reasoning"
	TierCheap     = "cheap"
	TierMid       = "mid"
	TierFallback  = "fallback"
	TierLocal     = "local"
)

// RuleSetConfig wraps a toggle plus an ordered list of rules; the same
// shape serves both the static_rules and heuristic_rules sections, the
// difference being only which Match predicates are legal within each
// (enforced by the routing package at compile time, not here).
type RuleSetConfig struct {
	Enabled bool         `yaml:"enabled"`
	Rules   []RuleConfig `yaml:"rules"`
}

// RuleConfig names a match predicate and the provider it routes to.
type RuleConfig struct {
	Name    string      `yaml:"name"`
	Match   MatchConfig `yaml:"match"`
	RouteTo string      `yaml:"route_to"`
}

// MatchConfig is the discriminated-sum-as-struct encoding of every
// matcher kind across both static and heuristic rules. Within one
// static rule the keys combine as a union - the rule matches if any
// present key matches, and a rule whose only key misses is false. The
// routing package's compiler rejects a MatchConfig with none of its
// recognized fields set (an unknown or empty matcher is a configuration
// error, never a silent no-op) and rejects static-only/heuristic-only
// fields used in the wrong rule set.
type MatchConfig struct {
	// Static-rule matchers.
	Any                  []MatchConfig       `yaml:"any,omitempty"`
	ModelRequested       []string            `yaml:"model_requested,omitempty"`
	SystemPromptContains []string            `yaml:"system_prompt_contains,omitempty"`
	HeaderContains       map[string][]string `yaml:"header_contains,omitempty"`

	// Heuristic-rule matchers.
	Fallthrough     *bool                  `yaml:"fallthrough,omitempty"`
	HasTools        *bool                  `yaml:"has_tools,omitempty"`
	EstimatedTokens *EstimatedTokensConfig `yaml:"estimated_tokens,omitempty"`
	MessageKeywords *MessageKeywordsConfig `yaml:"message_keywords,omitempty"`
}

type EstimatedTokensConfig struct {
	LessThan    *int `yaml:"less_than,omitempty"`
	GreaterThan *int `yaml:"greater_than,omitempty"`
}

type MessageKeywordsConfig struct {
	AnyOf      []string `yaml:"any_of"`
	MinMatches int      `yaml:"min_matches"`
}

// LLMClassifierConfig configures the optional third routing layer.
type LLMClassifierConfig struct {
	Enabled         bool              `yaml:"enabled"`
	Prompt          string            `yaml:"prompt"`
	CategoryRouting map[string]string `yaml:"category_routing"`
}

type HealthConfig struct {
	MaxFailures int `yaml:"max_failures"`
}

// MetricsConfig configures the durable request-log store.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
	// Driver selects the backing relational engine: "sqlite" (default,
	// embedded, WAL), "postgres", or "mysql" for centralized deployments.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}
