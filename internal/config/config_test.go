package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envConfigPath, envShmName, envWorkers, envSkipOnDecompressFailure} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaultsWithoutFileOrEnv(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ShmName != "shm_shr_channel_example" {
		t.Fatalf("ShmName = %q, want default", cfg.ShmName)
	}
	if cfg.Workers != 0 {
		t.Fatalf("Workers = %d, want 0", cfg.Workers)
	}
	if cfg.SkipOnDecompressFailure {
		t.Fatalf("SkipOnDecompressFailure = true, want false")
	}
}

func TestLoadReadsTOMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "shm_name = \"custom-channel\"\nworkers = 7\nskip_on_decompress_failure = true\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ShmName != "custom-channel" {
		t.Fatalf("ShmName = %q, want custom-channel", cfg.ShmName)
	}
	if cfg.Workers != 7 {
		t.Fatalf("Workers = %d, want 7", cfg.Workers)
	}
	if !cfg.SkipOnDecompressFailure {
		t.Fatalf("SkipOnDecompressFailure = false, want true")
	}
}

func TestLoadToleratesMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ShmName != "shm_shr_channel_example" {
		t.Fatalf("ShmName = %q, want default", cfg.ShmName)
	}
}

func TestEnvOverridesFileValues(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "shm_name = \"from-file\"\nworkers = 2\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	os.Setenv(envShmName, "from-env")
	os.Setenv(envWorkers, "9")
	os.Setenv(envSkipOnDecompressFailure, "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ShmName != "from-env" {
		t.Fatalf("ShmName = %q, want from-env", cfg.ShmName)
	}
	if cfg.Workers != 9 {
		t.Fatalf("Workers = %d, want 9", cfg.Workers)
	}
	if !cfg.SkipOnDecompressFailure {
		t.Fatalf("SkipOnDecompressFailure = false, want true")
	}
}

func TestEnvConfigPathOverridesArgument(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "shm_name = \"from-env-path\"\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	os.Setenv(envConfigPath, path)

	cfg, err := Load(filepath.Join(dir, "ignored.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ShmName != "from-env-path" {
		t.Fatalf("ShmName = %q, want from-env-path", cfg.ShmName)
	}
}
