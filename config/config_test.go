package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected info level got %s", cfg.Logging.Level)
	}
	if cfg.MQTT.ConnectTimeoutSec != 10 || cfg.MQTT.DisconnectQuiesceMS != 250 {
		t.Fatalf("bad mqtt defaults %+v", cfg.MQTT)
	}
	if cfg.Metrics.Enabled {
		t.Fatalf("metrics enabled by default")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := "logging:\n  level: debug\nmetrics:\n  enabled: true\n  listen: \":9999\"\nmqtt:\n  connect_timeout_sec: 3\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug got %s", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9999" {
		t.Fatalf("bad metrics %+v", cfg.Metrics)
	}
	if cfg.MQTT.ConnectTimeoutSec != 3 {
		t.Fatalf("expected 3 got %d", cfg.MQTT.ConnectTimeoutSec)
	}
	if cfg.MQTT.DisconnectQuiesceMS != 250 {
		t.Fatalf("default quiesce not applied")
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"warn"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected warn got %s", cfg.Logging.Level)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	if _, err := Load("cfg.toml"); err == nil {
		t.Fatalf("expected error for toml")
	}
}

func TestEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CMDSCRIPT_LOGGING__LEVEL", "error")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Fatalf("env override not applied, got %s", cfg.Logging.Level)
	}
}

func TestEnvOverrideWithoutFile(t *testing.T) {
	t.Setenv("CMDSCRIPT_LOGGING__LEVEL", "debug")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("env override not applied without a file, got %s", cfg.Logging.Level)
	}
	if cfg.MQTT.ConnectTimeoutSec != 10 {
		t.Fatalf("defaults not applied, got %+v", cfg.MQTT)
	}
}
