package config

import "time"

// DefaultConfig returns a configuration with every ambient field set to a
// sane value; Load layers the YAML document and environment overrides on
// top of this.
func DefaultConfig() *Config {
	return &Config{
		Server:         DefaultServerConfig(),
		Providers:      map[string]ProviderConfig{},
		FallbackChain:  nil,
		StaticRules:    RuleSetConfig{Enabled: false, Rules: nil},
		HeuristicRules: RuleSetConfig{Enabled: false, Rules: nil},
		LLMClassifier:  LLMClassifierConfig{Enabled: false},
		Health:         DefaultHealthConfig(),
		Metrics:        DefaultMetricsConfig(),
		Tracing:        TracingConfig{Enabled: false},
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8089",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    125 * time.Second, // slightly above the 120s upstream timeout
		ShutdownTimeout: 15 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{MaxFailures: 3}
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true, Driver: "sqlite"}
}

// DefaultProviderTimeout is applied when a provider entry does not
// override Timeout, matching the 120-second total timeout named in the
// concurrency & resource model.
const DefaultProviderTimeout = 120 * time.Second

// DefaultProviderConnectTimeout bounds dialing a new connection.
const DefaultProviderConnectTimeout = 10 * time.Second

// DefaultMaxConnsPerHost is the per-provider connection pool ceiling.
const DefaultMaxConnsPerHost = 20
