// Package envconfig reads the TENSOREXEC_* environment variables.
//
// Each setting is a function so that tests can change the environment and
// read the new value without reloading anything.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

var (
	// NumWorkers is the number of batches that may run at once.
	// Configurable via TENSOREXEC_NUM_WORKERS. Default: number of CPUs (0).
	NumWorkers = Uint("TENSOREXEC_NUM_WORKERS", 0)

	// MinChunk is the index range below which a task runs as one batch.
	// Configurable via TENSOREXEC_MIN_CHUNK. Default: 64.
	MinChunk = Uint("TENSOREXEC_MIN_CHUNK", 64)

	// MaxBytes caps the arena's live bytes.
	// Configurable via TENSOREXEC_MAX_BYTES. Default: unlimited (0).
	MaxBytes = Uint64("TENSOREXEC_MAX_BYTES", 0)

	// PoolMaxBytes caps the bytes idle in the scratch pool.
	// Configurable via TENSOREXEC_POOL_MAX_BYTES. Default: 256MB.
	PoolMaxBytes = Uint64("TENSOREXEC_POOL_MAX_BYTES", 256<<20)

	// BLAS names the matrix multiply plugin ("gonum", "blocked" or "none").
	// Configurable via TENSOREXEC_BLAS. Default: gonum.
	BLAS = StringWithDefault("TENSOREXEC_BLAS", "gonum")

	// Serial disables parallel batches.
	// Configurable via TENSOREXEC_SERIAL.
	Serial = Bool("TENSOREXEC_SERIAL")
)

// LogLevel returns the log level.
// Configurable via TENSOREXEC_DEBUG.
// Values: 0/false = INFO (default), 1/true = DEBUG, n = level -4n.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("TENSOREXEC_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// Var returns an environment variable stripped of surrounding quotes and
// spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Bool returns a reader for a boolean variable. Unparsable non-empty values
// count as true.
func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// StringWithDefault returns a reader for a string variable.
func StringWithDefault(k, defaultValue string) func() string {
	return func() string {
		if s := Var(k); s != "" {
			return s
		}
		return defaultValue
	}
}

// Uint returns a reader for an unsigned integer variable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 returns a reader for a byte count. Values accept a K, M or G suffix.
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := parseBytes(s); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

func parseBytes(s string) (uint64, error) {
	mult := uint64(1)
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		mult = 1 << 10
	case "M":
		mult = 1 << 20
	case "G":
		mult = 1 << 30
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

// EnvVar describes one variable for display.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"TENSOREXEC_DEBUG":          {"TENSOREXEC_DEBUG", LogLevel(), "Show additional debug information (e.g. TENSOREXEC_DEBUG=1)"},
		"TENSOREXEC_NUM_WORKERS":    {"TENSOREXEC_NUM_WORKERS", NumWorkers(), "Maximum number of batches running at once (default: CPU count)"},
		"TENSOREXEC_MIN_CHUNK":      {"TENSOREXEC_MIN_CHUNK", MinChunk(), "Index ranges shorter than this run as one batch"},
		"TENSOREXEC_MAX_BYTES":      {"TENSOREXEC_MAX_BYTES", MaxBytes(), "Arena byte limit (default: unlimited)"},
		"TENSOREXEC_POOL_MAX_BYTES": {"TENSOREXEC_POOL_MAX_BYTES", PoolMaxBytes(), "Bytes the scratch pool may keep idle"},
		"TENSOREXEC_BLAS":           {"TENSOREXEC_BLAS", BLAS(), "Matrix multiply plugin: gonum, blocked or none"},
		"TENSOREXEC_SERIAL":         {"TENSOREXEC_SERIAL", Serial(), "Run every task as a single batch"},
	}
}

// Values returns every variable formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
