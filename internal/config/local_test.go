package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestTemarioDir(t *testing.T) {
	dir, err := TemarioDir()
	if err != nil {
		t.Fatalf("TemarioDir() error = %v", err)
	}

	// Should end with .temario
	if filepath.Base(dir) != ".temario" {
		t.Errorf("TemarioDir() = %q, want ending with .temario", dir)
	}

	// Should be an absolute path
	if !filepath.IsAbs(dir) {
		t.Errorf("TemarioDir() = %q, want absolute path", dir)
	}
}

func TestEnsureTemarioDir(t *testing.T) {
	// Save original HOME
	originalHome := os.Getenv("HOME")
	defer os.Setenv("HOME", originalHome)

	// Use temp directory as HOME
	tmpHome := t.TempDir()
	os.Setenv("HOME", tmpHome)

	dir, err := EnsureTemarioDir()
	if err != nil {
		t.Fatalf("EnsureTemarioDir() error = %v", err)
	}

	expectedDir := filepath.Join(tmpHome, ".temario")
	if dir != expectedDir {
		t.Errorf("EnsureTemarioDir() = %q, want %q", dir, expectedDir)
	}

	// Verify subdirectories exist
	for _, subdir := range []string{"logs", "sessions", "cache"} {
		path := filepath.Join(dir, subdir)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("EnsureTemarioDir() should create %s", subdir)
		}
	}
}

func TestDefaultLocalConfig(t *testing.T) {
	cfg := DefaultLocalConfig()
	if cfg == nil {
		t.Fatal("DefaultLocalConfig() returned nil")
	}

	// Verify daemon defaults
	if cfg.Daemon.Port != 7433 {
		t.Errorf("Daemon.Port = %d, want 7433", cfg.Daemon.Port)
	}
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Daemon.Bind = %q, want 127.0.0.1", cfg.Daemon.Bind)
	}
	if cfg.Daemon.LogLevel != "info" {
		t.Errorf("Daemon.LogLevel = %q, want info", cfg.Daemon.LogLevel)
	}

	// Verify storage and cache defaults
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("Cache.Driver = %q, want memory", cfg.Cache.Driver)
	}

	// Verify adaptive defaults
	if cfg.Adaptive.WarmupAnswers != 5 {
		t.Errorf("Adaptive.WarmupAnswers = %d, want 5", cfg.Adaptive.WarmupAnswers)
	}
	if cfg.Adaptive.UpperThreshold != 0.8 || cfg.Adaptive.LowerThreshold != 0.5 {
		t.Errorf("Adaptive thresholds = %v/%v, want 0.8/0.5", cfg.Adaptive.UpperThreshold, cfg.Adaptive.LowerThreshold)
	}
	if cfg.Selection.ActiveWindow != 10 {
		t.Errorf("Selection.ActiveWindow = %d, want 10", cfg.Selection.ActiveWindow)
	}

	// Verify session defaults
	if cfg.Sessions.TTL != 6*time.Hour {
		t.Errorf("Sessions.TTL = %v, want 6h", cfg.Sessions.TTL)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultLocalConfig().Validate() error = %v", err)
	}
}

func TestLoadLocalConfig_DefaultsWhenNoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}

	// Should return defaults
	if cfg.Daemon.Port != 7433 {
		t.Errorf("Daemon.Port = %d, want 7433 (default)", cfg.Daemon.Port)
	}
}

func TestLoadLocalConfig_WithConfigFile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	temarioDir := filepath.Join(tmpHome, ".temario")
	if err := os.MkdirAll(temarioDir, 0755); err != nil {
		t.Fatalf("Failed to create .temario dir: %v", err)
	}

	configContent := `daemon:
  port: 9999
  log_level: debug
cache:
  driver: redis
  ttl: 30s
adaptive:
  upper_threshold: 0.9
sessions:
  ttl: 12h
`
	configPath := filepath.Join(temarioDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}

	if cfg.Daemon.Port != 9999 {
		t.Errorf("Daemon.Port = %d, want 9999", cfg.Daemon.Port)
	}
	// Unset keys keep their defaults
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Daemon.Bind = %q, want 127.0.0.1", cfg.Daemon.Bind)
	}
	if cfg.Cache.Driver != "redis" || cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache = %+v, want redis with 30s ttl", cfg.Cache)
	}
	if cfg.Cache.Redis.Addr != "localhost:6379" {
		t.Errorf("Cache.Redis.Addr = %q, want default", cfg.Cache.Redis.Addr)
	}
	if cfg.Adaptive.UpperThreshold != 0.9 || cfg.Adaptive.LowerThreshold != 0.5 {
		t.Errorf("Adaptive thresholds = %v/%v, want 0.9/0.5", cfg.Adaptive.UpperThreshold, cfg.Adaptive.LowerThreshold)
	}
	if cfg.Sessions.TTL != 12*time.Hour {
		t.Errorf("Sessions.TTL = %v, want 12h", cfg.Sessions.TTL)
	}
}

func TestLoadLocalConfig_InvalidConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("invalid: yaml: [broken"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadLocalConfigFile(path)
	if err == nil {
		t.Error("LoadLocalConfigFile() should error on invalid YAML")
	}
}

func TestSaveLocalConfig(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	cfg := DefaultLocalConfig()
	cfg.Daemon.Port = 8888
	cfg.Storage.Driver = "postgres"
	cfg.Storage.PostgresURL = "postgres://localhost/temario"
	cfg.Cache.Redis.Password = "hunter2"

	if err := SaveLocalConfig(cfg); err != nil {
		t.Fatalf("SaveLocalConfig() error = %v", err)
	}

	configPath := filepath.Join(tmpHome, ".temario", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}

	if strings.Contains(string(data), "hunter2") {
		t.Error("saved config should not contain the Redis password")
	}
	if !strings.Contains(string(data), "ttl: 6h0m0s") {
		t.Errorf("saved config should encode durations as strings:\n%s", data)
	}

	var loaded LocalConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Failed to parse saved config: %v", err)
	}

	if loaded.Daemon.Port != 8888 {
		t.Errorf("Saved Daemon.Port = %d, want 8888", loaded.Daemon.Port)
	}
	if loaded.Storage.Driver != "postgres" {
		t.Errorf("Saved Storage.Driver = %q, want postgres", loaded.Storage.Driver)
	}
	if loaded.Sessions.TTL != 6*time.Hour {
		t.Errorf("Saved Sessions.TTL = %v, want 6h", loaded.Sessions.TTL)
	}
}

func TestLocalConfig_SQLitePath(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	cfg := DefaultLocalConfig()
	got, err := cfg.SQLitePath()
	if err != nil {
		t.Fatalf("SQLitePath() error = %v", err)
	}
	if want := filepath.Join(tmpHome, ".temario", "temario.db"); got != want {
		t.Errorf("SQLitePath() = %q, want %q", got, want)
	}

	cfg.Storage.SQLitePath = "/data/content.db"
	if got, _ := cfg.SQLitePath(); got != "/data/content.db" {
		t.Errorf("SQLitePath() = %q, want /data/content.db", got)
	}
}

func TestLocalConfig_Addr(t *testing.T) {
	cfg := DefaultLocalConfig()
	if got := cfg.Addr(); got != "127.0.0.1:7433" {
		t.Errorf("Addr() = %q, want 127.0.0.1:7433", got)
	}
}
