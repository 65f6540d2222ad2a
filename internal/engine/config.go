package engine

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/tensorexec/internal/envconfig"
	"github.com/born-ml/tensorexec/internal/gemm"
	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/pool"
)

// Config holds the settings of one engine instance.
type Config struct {
	// NumWorkers is the number of batches running at once (0 = CPU count).
	NumWorkers int `yaml:"num_workers"`

	// MinChunkSize is the index range below which a task runs as one batch.
	MinChunkSize int `yaml:"min_chunk_size"`

	// Serial runs every task as one batch on one worker.
	Serial bool `yaml:"serial"`

	// MaxBytes caps the arena's live bytes (0 = unlimited).
	MaxBytes int64 `yaml:"max_bytes"`

	// MaxRecycled is the number of free slabs kept per size class.
	MaxRecycled int `yaml:"max_recycled"`

	// PoolMaxBytes caps the bytes idle in the scratch pool (0 = unlimited).
	PoolMaxBytes int64 `yaml:"pool_max_bytes"`

	// PoolMaxPerClass caps the idle buffers per pool size class.
	PoolMaxPerClass int `yaml:"pool_max_per_class"`

	// BLAS names the matrix multiply plugin: gonum, blocked or none.
	BLAS string `yaml:"blas"`

	// Seed is the base of the seed counter used for unseeded random ops.
	Seed uint64 `yaml:"seed"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	p := parallel.DefaultConfig()
	return Config{
		NumWorkers:      p.NumWorkers,
		MinChunkSize:    p.MinChunkSize,
		Serial:          !p.Enabled,
		MaxRecycled:     8,
		PoolMaxBytes:    256 << 20,
		PoolMaxPerClass: pool.DefaultMaxPerClass,
		BLAS:            "gonum",
		LogLevel:        "info",
	}
}

// ConfigFromEnv returns the defaults overridden by TENSOREXEC_* variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if n := envconfig.NumWorkers(); n > 0 {
		cfg.NumWorkers = int(n)
	}
	cfg.MinChunkSize = int(envconfig.MinChunk())
	cfg.MaxBytes = int64(envconfig.MaxBytes())
	cfg.PoolMaxBytes = int64(envconfig.PoolMaxBytes())
	cfg.BLAS = envconfig.BLAS()
	if envconfig.Serial() {
		cfg.Serial = true
	}
	cfg.LogLevel = envconfig.LogLevel().String()
	return cfg
}

// LoadConfig reads a YAML file over the environment configuration. Keys
// missing from the file keep their environment or default values.
func LoadConfig(path string) (Config, error) {
	cfg := ConfigFromEnv()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot use.
func (c Config) Validate() error {
	if c.NumWorkers < 0 {
		return errors.New("num_workers must be >= 0")
	}
	if c.MinChunkSize < 0 {
		return errors.New("min_chunk_size must be >= 0")
	}
	if c.MaxBytes < 0 || c.PoolMaxBytes < 0 {
		return errors.New("byte limits must be >= 0")
	}
	if _, ok := gemm.ByName(c.BLAS); !ok {
		return errors.Errorf("unknown blas plugin %q", c.BLAS)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. An empty level is info.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	return level, nil
}

// Parallel returns the scheduler configuration.
func (c Config) Parallel() parallel.Config {
	return parallel.Config{
		Enabled:      !c.Serial,
		NumWorkers:   c.NumWorkers,
		MinChunkSize: c.MinChunkSize,
	}
}

// YAML renders the configuration as a YAML document.
func (c Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "encode config")
	}
	return string(out), nil
}
