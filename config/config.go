// Package config loads the optional runtime tuning file. Script
// semantics never live here; the script itself is the source of truth
// for connection and workload configuration.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cmdscript/cmdscript/infra/metrics"
)

type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Metrics metrics.Config `json:"metrics"`
	MQTT    MQTTConfig     `json:"mqtt"`
}

// LoggingConfig controls the runtime (stderr) logger, not the script's
// subscription log files.
type LoggingConfig struct {
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// MQTTConfig tunes adapter behavior the script language does not cover.
type MQTTConfig struct {
	ConnectTimeoutSec   int `json:"connect_timeout_sec"`
	DisconnectQuiesceMS int `json:"disconnect_quiesce_ms"`
}

// SetDefaults applies sane defaults.
func (c *MQTTConfig) SetDefaults() {
	if c.ConnectTimeoutSec <= 0 {
		c.ConnectTimeoutSec = 10
	}
	if c.DisconnectQuiesceMS <= 0 {
		c.DisconnectQuiesceMS = 250
	}
}

// Validate checks field ranges.
func (c MQTTConfig) Validate() error {
	if c.ConnectTimeoutSec < 0 || c.DisconnectQuiesceMS < 0 {
		return fmt.Errorf("mqtt timeouts must be positive")
	}
	return nil
}

// Default returns the baseline configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Logging.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.MQTT.SetDefaults()
	return cfg
}

// Load reads a yaml or json config file, applies CMDSCRIPT_ environment
// overrides and fills defaults. An empty path skips the file and still
// honors the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("CMDSCRIPT_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cmdscript_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Logging.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.MQTT.SetDefaults()
	if err := cfg.MQTT.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
