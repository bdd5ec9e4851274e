package config

import (
	"fmt"
	"strings"
)

var validDialects = map[string]bool{
	DialectOpenAICompat:    true,
	DialectGoogleGenAI:     true,
	DialectAnthropicCompat: true,
}

// Validate checks structural invariants that must hold before the
// gateway begins serving. It is registered as the default Validator by
// MustLoad; callers composing their own Loader may add further
// Validators alongside or instead of this one.
func Validate(cfg *Config) error {
	var errs []string

	for name, p := range cfg.Providers {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "provider with empty name")
			continue
		}
		if !validDialects[p.Dialect] {
			errs = append(errs, fmt.Sprintf("provider %q: unknown dialect %q", name, p.Dialect))
		}
		if p.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("provider %q: empty base_url", name))
		}
		if p.MaxTokens < 0 {
			errs = append(errs, fmt.Sprintf("provider %q: negative max_tokens", name))
		}
	}

	for _, name := range cfg.FallbackChain {
		if _, ok := cfg.Providers[name]; !ok {
			errs = append(errs, fmt.Sprintf("fallback_chain references unconfigured provider %q", name))
		}
	}

	if cfg.Health.MaxFailures <= 0 {
		errs = append(errs, "health.max_failures must be positive")
	}

	if cfg.LLMClassifier.Enabled {
		for category, provider := range cfg.LLMClassifier.CategoryRouting {
			if _, ok := cfg.Providers[provider]; !ok {
				errs = append(errs, fmt.Sprintf("llm_classifier.category_routing[%s] references unconfigured provider %q", category, provider))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
