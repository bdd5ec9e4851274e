package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader builds a Config from a YAML file plus environment-variable
// substitution, following the builder pattern used throughout this
// codebase (NewLoader().WithPath(p).Load()).
type Loader struct {
	path       string
	validators []Validator
}

// Validator checks a fully loaded Config and returns a descriptive error
// if it is unacceptable. Registered validators run in the order added.
type Validator func(*Config) error

func NewLoader() *Loader {
	return &Loader{}
}

func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

func (l *Loader) WithValidator(v Validator) *Loader {
	l.validators = append(l.validators, v)
	return l
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv implements ${VAR} and ${VAR:-default} substitution over raw
// text. An unset VAR with no default is left untouched (the whole
// ${...} token is preserved verbatim) rather than replaced with an
// empty string, so a missing secret surfaces as a recognizable literal
// instead of silently vanishing.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(token string) string {
		inner := token[2 : len(token)-1] // strip "${" and "}"
		name, def, hasDefault := strings.Cut(inner, ":-")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		return token
	})
}

// Load reads the YAML document at l.path, expands environment variables
// across every string value, unmarshals into Config on top of
// DefaultConfig, fills in provider names from their map keys, and runs
// every registered Validator. A missing or malformed file is a
// configuration error and is therefore fatal to the caller (per the
// error-handling design: configuration errors never allow the process to
// begin serving).
func (l *Loader) Load() (*Config, error) {
	if l.path == "" {
		return nil, fmt.Errorf("config: no path set")
	}
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", l.path, err)
	}

	expanded := expandEnv(string(raw))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", l.path, err)
	}

	for name, p := range cfg.Providers {
		p.Name = name
		cfg.Providers[name] = p
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config: validation: %w", err)
		}
	}

	return cfg, nil
}

// MustLoad loads the config or panics; intended only for main()/tests.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithPath(path).WithValidator(Validate).Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
