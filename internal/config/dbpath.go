package config

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvDBPathOverride is the environment variable that, when set, takes
// precedence over everything else in ResolveDBPath.
const EnvDBPathOverride = "CLAWGATE_DB_PATH"

// isUnsafeRelativePath names the rejected-unless-overridden relative
// paths: the bare name "clawgate.db" or any "./"-prefixed path resolves
// against whatever the process's current working directory happens to
// be at the moment, which is the opposite of "durable" for a service
// that may be started from anywhere.
func isUnsafeRelativePath(p string) bool {
	return p == "clawgate.db" || strings.HasPrefix(p, "./")
}

// ResolveDBPath implements the metrics store's path-resolution priority
// order: an explicit environment override; a configured path; an XDG
// data-home location; a home-directory default. A configured path equal
// to the bare name "clawgate.db", or starting with "./", is rejected in
// favour of the platform default unless the environment variable
// explicitly overrides it.
func ResolveDBPath(cfg MetricsConfig) string {
	if v, ok := os.LookupEnv(EnvDBPathOverride); ok && v != "" {
		return v
	}

	if cfg.DBPath != "" && filepath.IsAbs(cfg.DBPath) && !isUnsafeRelativePath(cfg.DBPath) {
		return cfg.DBPath
	}
	if cfg.DBPath != "" && !isUnsafeRelativePath(cfg.DBPath) && !filepath.IsAbs(cfg.DBPath) {
		// A relative-but-not-bare path (e.g. "data/clawgate.db") is still
		// configuration-supplied intent; honor it rather than silently
		// discarding a path the operator clearly chose deliberately.
		return cfg.DBPath
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "clawgate", "clawgate.db")
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "clawgate", "clawgate.db")
	}
	return filepath.Join(home, ".local", "share", "clawgate", "clawgate.db")
}
