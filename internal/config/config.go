// Package config provides the configuration structure for voice-studio.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	OutputDir   string `toml:"output_dir"`
}

// BridgeConfig holds the configuration for the local HTTP bridge.
type BridgeConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	MinTextLength int    `toml:"min_text_length"`
}

// ModelConfig holds the configuration for the synthesis model.
type ModelConfig struct {
	RootDir string `toml:"root_dir"`
	Command string `toml:"command"`
	Seed    int64  `toml:"seed"`
}

// NATSConfig holds the configuration for the optional NATS worker surface.
type NATSConfig struct {
	Enabled                bool   `toml:"enabled"`
	URL                    string `toml:"url"`
	SynthesisSubject       string `toml:"synthesis_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	Paths  PathsConfig  `toml:"paths"`
	Bridge BridgeConfig `toml:"bridge"`
	Model  ModelConfig  `toml:"model"`
	NATS   NATSConfig   `toml:"nats"`
}

// Defaults applied after loading for fields a configuration file may omit.
const (
	DefaultBridgeHost    = "127.0.0.1"
	DefaultBridgePort    = 5010
	DefaultMinTextLength = 4
	DefaultSeed          = 42
	DefaultModelCommand  = "cosy-infer"
)

// Load loads the configuration for voice-studio and fills in defaults for
// omitted fields.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills zero-value fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Bridge.Host == "" {
		c.Bridge.Host = DefaultBridgeHost
	}

	if c.Bridge.Port == 0 {
		c.Bridge.Port = DefaultBridgePort
	}

	if c.Bridge.MinTextLength == 0 {
		c.Bridge.MinTextLength = DefaultMinTextLength
	}

	if c.Model.Command == "" {
		c.Model.Command = DefaultModelCommand
	}

	if c.Model.Seed == 0 {
		c.Model.Seed = DefaultSeed
	}
}
