// Package config_test tests the configuration loading for speakctl.
package config_test

import (
	"testing"

	"github.com/book-expert/speakctl/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[providers]
default_provider = "openai"

[providers.openai]
api_key = "sk-test"
default_voice = "alloy"

[providers.elevenlabs]
api_key = "el-test"

[providers.google]
service_account_path = "/etc/speakctl/google-sa.json"

[audio]
default_format = "flac"
default_output_dir = "/tmp/speakctl-out"
decoder_binary = "ffplay"
transcoder_binary = "ffmpeg"

[local_server]
host = "127.0.0.1"
port = 12345
binary = "local-tts-server"
startup_timeout_seconds = 30

[cache]
document_cache_dir = "/tmp/speakctl-cache/documents"
voice_cache_journal_path = "/tmp/speakctl-cache/voices.json"

[timeouts]
connect_seconds = 10
read_seconds = 30

[log]
level = "debug"
destination = "stderr"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Providers.DefaultID)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "alloy", cfg.Providers.OpenAI.DefaultVoice)
	assert.Equal(t, "el-test", cfg.Providers.ElevenLabs.APIKey)
	assert.Equal(t, "/etc/speakctl/google-sa.json", cfg.Providers.Google.ServiceAccountPath)
	assert.Equal(t, "flac", cfg.AudioCfg.DefaultFormat)
	assert.Equal(t, "/tmp/speakctl-out", cfg.AudioCfg.DefaultOutputDir)
	assert.Equal(t, 12345, cfg.LocalCfg.Port)
	assert.Equal(t, "local-tts-server", cfg.LocalCfg.Binary)
	assert.Equal(t, "/tmp/speakctl-cache/documents", cfg.CacheCfg.DocumentCacheDir)
	assert.Equal(t, 10, cfg.TimeoutsCfg.ConnectSeconds)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestProviderLookup(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Providers.Edge = config.ProviderConfig{DefaultVoice: "en-US-AriaNeural"}
	cfg.Providers.OpenAI = config.ProviderConfig{APIKey: "sk-test"}

	assert.Equal(t, "en-US-AriaNeural", cfg.Provider("edge").DefaultVoice)
	assert.Equal(t, "sk-test", cfg.Provider("openai").APIKey)
	assert.Equal(t, config.ProviderConfig{}, cfg.Provider("unknown"))
	assert.Equal(t, "edge", cfg.DefaultProviderID())

	cfg.Providers.DefaultID = "google"
	assert.Equal(t, "google", cfg.DefaultProviderID())
}
