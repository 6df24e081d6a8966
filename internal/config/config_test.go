// Package config_test tests the configuration loading for voice-studio.
package config_test

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-studio/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[paths]
base_logs_dir = "/var/log/voice-studio"
output_dir = "/srv/voice-studio/output"

[bridge]
host = "0.0.0.0"
port = 5010
min_text_length = 4

[model]
root_dir = "/opt/models"
command = "cosy-infer"
seed = 42

[nats]
enabled = true
url = "nats://127.0.0.1:4222"
synthesis_subject = "voice.synthesize"
audio_object_store_bucket = "VOICE_AUDIO"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "/var/log/voice-studio", cfg.Paths.BaseLogsDir)
	assert.Equal(t, "/srv/voice-studio/output", cfg.Paths.OutputDir)
	assert.Equal(t, "0.0.0.0", cfg.Bridge.Host)
	assert.Equal(t, 5010, cfg.Bridge.Port)
	assert.Equal(t, 4, cfg.Bridge.MinTextLength)
	assert.Equal(t, "/opt/models", cfg.Model.RootDir)
	assert.Equal(t, "cosy-infer", cfg.Model.Command)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "voice.synthesize", cfg.NATS.SynthesisSubject)
	assert.Equal(t, "VOICE_AUDIO", cfg.NATS.AudioObjectStoreBucket)
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.ApplyDefaults()

	assert.Equal(t, config.DefaultBridgeHost, cfg.Bridge.Host)
	assert.Equal(t, config.DefaultBridgePort, cfg.Bridge.Port)
	assert.Equal(t, config.DefaultMinTextLength, cfg.Bridge.MinTextLength)
	assert.Equal(t, config.DefaultModelCommand, cfg.Model.Command)
	assert.Equal(t, int64(config.DefaultSeed), cfg.Model.Seed)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Bridge: config.BridgeConfig{Host: "10.0.0.5", Port: 9000, MinTextLength: 1},
		Model:  config.ModelConfig{Seed: 7},
	}

	cfg.ApplyDefaults()

	assert.Equal(t, "10.0.0.5", cfg.Bridge.Host)
	assert.Equal(t, 9000, cfg.Bridge.Port)
	assert.Equal(t, 1, cfg.Bridge.MinTextLength)
	assert.Equal(t, int64(7), cfg.Model.Seed)
}
