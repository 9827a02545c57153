package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("store = %q, want %q", cfg.Store, StoreMemory)
	}
	if cfg.Video.MaxFrameSize != 10*1024*1024 {
		t.Errorf("max_frame_size = %d, want 10MB", cfg.Video.MaxFrameSize)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
host: 127.0.0.1
port: 9000
store: redis
redis:
  addr: redis:6379
  dial_timeout: 2s
video:
  max_frame_size: 1048576
retention:
  stopped_ttl: 30m
  sweep_interval: 15s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Host != "127.0.0.1" || cfg.Port != 9000 {
		t.Errorf("address = %s:%d, want 127.0.0.1:9000", cfg.Host, cfg.Port)
	}
	if cfg.Store != StoreRedis || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("store = %q addr = %q", cfg.Store, cfg.Redis.Addr)
	}
	if cfg.Redis.DialTimeout.Std() != 2*time.Second {
		t.Errorf("dial_timeout = %v, want 2s", cfg.Redis.DialTimeout)
	}
	if cfg.Retention.StoppedTTL.Std() != 30*time.Minute {
		t.Errorf("stopped_ttl = %v, want 30m", cfg.Retention.StoppedTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	// Незаданные значения остаются из дефолтов
	if cfg.Server.ShutdownTimeout.Std() != 10*time.Second {
		t.Errorf("shutdown_timeout = %v, want default 10s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PORT", "9100")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("port = %d, env override must win", cfg.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, env override must win", cfg.Logging.Level)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadConfig of missing file must fail")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"unknown store", func(c *Config) { c.Store = "etcd" }},
		{"redis without addr", func(c *Config) { c.Store = StoreRedis; c.Redis.Addr = "" }},
		{"zero frame size", func(c *Config) { c.Video.MaxFrameSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate must fail")
			}
		})
	}
}
