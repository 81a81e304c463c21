package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	setEnvWithCleanup(t, "VERIDA_AUTH_SECRET", "s3cret")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.StateBackend != BackendMemory {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TokenTTL != time.Hour || cfg.ProofURLTTL != 15*time.Minute {
		t.Fatalf("durations not decoded: %v %v", cfg.TokenTTL, cfg.ProofURLTTL)
	}
	if cfg.RateBurst != 20 || cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if cfg.DevTokens {
		t.Fatal("dev tokens must be off by default")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	clearEnv(t)
	setEnvWithCleanup(t, "VERIDA_AUTH_SECRET", "s3cret")
	setEnvWithCleanup(t, "VERIDA_STATE_BACKEND", " Postgres ")
	setEnvWithCleanup(t, "VERIDA_PG_DSN", "postgres://verida@localhost/verida")
	setEnvWithCleanup(t, "VERIDA_DEV_TOKENS", "true")
	setEnvWithCleanup(t, "VERIDA_CORS_ORIGINS", "http://a.test, http://b.test,")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StateBackend != BackendPostgres || !cfg.DevTokens {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.MirrorDatabase() != "postgres://verida@localhost/verida" {
		t.Fatalf("mirror should default to the state database, got %q", cfg.MirrorDatabase())
	}
	if got := cfg.AllowedOrigins(); len(got) != 2 || got[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", got)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := "AUTH_SECRET=from-file\nHTTP_ADDR=:9999\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	setEnvWithCleanup(t, "VERIDA_HTTP_ADDR", ":7000")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AuthSecret != "from-file" {
		t.Fatalf("expected secret from file, got %q", cfg.AuthSecret)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Fatalf("environment must win over file, got %q", cfg.HTTPAddr)
	}
}

func TestValidate(t *testing.T) {
	base := Config{StateBackend: BackendMemory, AuthSecret: "x", TokenTTL: time.Hour, RateBurst: 1, RatePerSec: 1}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*Config){
		"VERIDA_PG_DSN":        func(c *Config) { c.StateBackend = BackendPostgres },
		"VERIDA_REDIS_URL":     func(c *Config) { c.StateBackend = BackendRedis },
		"VERIDA_STATE_BACKEND": func(c *Config) { c.StateBackend = "etcd" },
		"VERIDA_AUTH_SECRET":   func(c *Config) { c.AuthSecret = "" },
		"VERIDA_TOKEN_TTL":     func(c *Config) { c.TokenTTL = 0 },
	}
	for want, mutate := range cases {
		cfg := base
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error mentioning %s, got %v", want, err)
		}
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		unsetEnvWithCleanup(t, envPrefix+"_"+key)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
