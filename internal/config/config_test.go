package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("FLUSH_INTERVAL_SECONDS", "")
	t.Setenv("MATETRIP_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Errorf("Addr = %q, want :8787", cfg.Addr)
	}
	if cfg.FlushInterval != time.Minute {
		t.Errorf("FlushInterval = %v, want 1m", cfg.FlushInterval)
	}
	if cfg.CacheOpTimeout != 5*time.Second {
		t.Errorf("CacheOpTimeout = %v, want 5s", cfg.CacheOpTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MATETRIP_CONFIG_FILE", "")
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("FLUSH_INTERVAL_SECONDS", "0")
	t.Setenv("AGENT_TIMEOUT_SECONDS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", cfg.Addr)
	}
	if cfg.FlushInterval != 0 {
		t.Errorf("FlushInterval = %v, want 0", cfg.FlushInterval)
	}
	if cfg.AgentTimeout != 30*time.Second {
		t.Errorf("AgentTimeout = %v, want fallback 30s", cfg.AgentTimeout)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matetrip.yaml")
	contents := "redis_url: redis://cache:6379/2\nflush_interval: 15s\nagent_url: http://agent.local/reply\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MATETRIP_CONFIG_FILE", path)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RedisURL != "redis://cache:6379/2" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.FlushInterval != 15*time.Second {
		t.Errorf("FlushInterval = %v, want 15s", cfg.FlushInterval)
	}
	if cfg.AgentURL != "http://agent.local/reply" {
		t.Errorf("AgentURL = %q", cfg.AgentURL)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("addr: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MATETRIP_CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail on malformed YAML")
	}
}
