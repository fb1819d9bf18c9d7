// Package config loads the operator knobs that do not affect wire
// compatibility: the shared-memory object name, the compression
// worker pool size, and the skip-vs-abort policy for decompression
// failures (spec.md §9). It follows the teacher's config.toml +
// environment-override convention (ALEPH_FEEDER_CONFIG / ALEPH_SHM),
// renamed to this module's own variables.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds the knobs read from file and environment.
type Config struct {
	// ShmName is the object created under /dev/shm by the producer and
	// opened by the consumer.
	ShmName string `toml:"shm_name"`

	// Workers bounds the parallel compression/decompression pool. Zero
	// or negative defaults to runtime.GOMAXPROCS(0).
	Workers int `toml:"workers"`

	// SkipOnDecompressFailure resolves spec.md §9's Open Question: when
	// false (the default), the consumer aborts on a corrupt or
	// empty-output block; when true, it logs and skips it.
	SkipOnDecompressFailure bool `toml:"skip_on_decompress_failure"`
}

// defaults mirror the values used throughout spec.md's worked
// examples and this module's own tests.
func defaults() Config {
	return Config{
		ShmName: "shm_shr_channel_example",
		Workers: 0,
	}
}

// Environment variable names, following the teacher's
// ALEPH_FEEDER_CONFIG / ALEPH_SHM naming convention.
const (
	envConfigPath             = "SHMXFER_CONFIG"
	envShmName                = "SHMXFER_SHM"
	envWorkers                = "SHMXFER_WORKERS"
	envSkipOnDecompressFailure = "SHMXFER_SKIP_ON_DECOMPRESS_FAILURE"
)

// Load reads the .env file (if any), then the TOML file named by path
// or the SHMXFER_CONFIG environment variable, then applies any
// remaining environment overrides. A missing TOML file is not an
// error: Load falls back to defaults() so a bare environment-only
// deployment still works.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if p := os.Getenv(envConfigPath); p != "" {
		path = p
	}

	cfg := defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := toml.Unmarshal(b, &cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if s := os.Getenv(envShmName); s != "" {
		cfg.ShmName = s
	}
	if s := os.Getenv(envWorkers); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.Workers = n
		}
	}
	if s := os.Getenv(envSkipOnDecompressFailure); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			cfg.SkipOnDecompressFailure = b
		}
	}
}
