package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 5000 {
		t.Errorf("Expected port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Pool.MaxHostCount != 65536 {
		t.Errorf("Expected max host count 65536, got %d", cfg.Pool.MaxHostCount)
	}
	if cfg.Pool.LockTimeout != 5*time.Second {
		t.Errorf("Expected lock timeout 5s, got %s", cfg.Pool.LockTimeout)
	}
	if cfg.Database.Enabled || cfg.Redis.Enabled || cfg.Etcd.Enabled {
		t.Error("Expected external backends to be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
pool:
  max_host_count: 1024
logging:
  format: console
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("ADDRPOOL_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Pool.MaxHostCount != 1024 {
		t.Errorf("Expected max host count 1024, got %d", cfg.Pool.MaxHostCount)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Expected console format, got %s", cfg.Logging.Format)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected env override debug, got %s", cfg.Logging.Level)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default host to survive, got %s", cfg.Server.Host)
	}
}

func TestValidate_RejectsZeroPool(t *testing.T) {
	cfg := Default()
	cfg.Pool.MaxHostCount = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero max host count")
	}
}

func TestDatabaseConfig_URL(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, Name: "n", SSLMode: "disable"}
	want := "postgres://u:p@db:5432/n?sslmode=disable"
	if got := c.URL(); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}
