// Package config reads daemon and CLI settings from the environment.
// Blank values count as unset, and unparsable values log a warning and
// fall back to the default.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// lookup returns the trimmed value of key, reporting false when it is unset or blank.
func lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func parse[T any](key string, fallback T, kind string, parseFn func(string) (T, error)) T {
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := parseFn(value)
	if err != nil {
		slog.Warn("invalid config value", "key", key, "kind", kind, "error", err)
		return fallback
	}
	return parsed
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	return parse(key, fallback, "int", strconv.Atoi)
}

// GetInt64 retrieves an environment variable as a 64-bit integer.
func GetInt64(key string, fallback int64) int64 {
	return parse(key, fallback, "int64", func(v string) (int64, error) {
		return strconv.ParseInt(v, 10, 64)
	})
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	return parse(key, fallback, "bool", strconv.ParseBool)
}

// GetSeconds reads a whole number of seconds. Zero and negative values are
// rejected in favour of fallback.
func GetSeconds(key string, fallback int) time.Duration {
	seconds := parse(key, fallback, "seconds", func(v string) (int, error) {
		n, err := strconv.Atoi(v)
		if err == nil && n <= 0 {
			return 0, strconv.ErrRange
		}
		return n, err
	})
	return time.Duration(seconds) * time.Second
}
