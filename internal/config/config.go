// Package config provides the configuration structure for speakctl.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// ProviderConfig holds the per-provider settings a synthesis back-end needs
// to authenticate and reach its endpoint. Not every field applies to every
// provider; unused fields are left at their zero value.
type ProviderConfig struct {
	APIKey             string `toml:"api_key"`
	Endpoint           string `toml:"endpoint"`
	DefaultVoice       string `toml:"default_voice"`
	ServiceAccountPath string `toml:"service_account_path"`
}

// ProvidersConfig groups the five synthesis back-ends by their provider id.
type ProvidersConfig struct {
	Edge        ProviderConfig `toml:"edge"`
	OpenAI      ProviderConfig `toml:"openai"`
	ElevenLabs  ProviderConfig `toml:"elevenlabs"`
	Google      ProviderConfig `toml:"google"`
	Local       ProviderConfig `toml:"local"`
	DefaultID   string         `toml:"default_provider"`
}

// AudioConfig holds the defaults and external-tool names for the playback
// and transcoding subsystems.
type AudioConfig struct {
	DefaultFormat    string `toml:"default_format"`
	DefaultOutputDir string `toml:"default_output_dir"`
	DecoderBinary    string `toml:"decoder_binary"`
	TranscoderBinary string `toml:"transcoder_binary"`
}

// LocalServerConfig holds the connection and lifecycle settings for the
// local neural provider's persistent synthesis server.
type LocalServerConfig struct {
	Host                   string `toml:"host"`
	Port                   int    `toml:"port"`
	Binary                 string `toml:"binary"`
	StartupTimeoutSeconds  int    `toml:"startup_timeout_seconds"`
}

// CacheConfig holds the on-disk locations of the document cache and the
// voice-cache journal.
type CacheConfig struct {
	DocumentCacheDir      string `toml:"document_cache_dir"`
	VoiceCacheJournalPath string `toml:"voice_cache_journal_path"`
}

// TimeoutsConfig holds the configurable timeout overrides named in SPEC_FULL
// §5. Zero means "use the component's built-in default".
type TimeoutsConfig struct {
	ConnectSeconds         int `toml:"connect_seconds"`
	ReadSeconds            int `toml:"read_seconds"`
	DecoderStartupSeconds  int `toml:"decoder_startup_seconds"`
	DecoderIdleSeconds     int `toml:"decoder_idle_seconds"`
	TranscoderSeconds      int `toml:"transcoder_seconds"`
}

// LogConfig holds the destination and verbosity for the final logger.
type LogConfig struct {
	Level       string `toml:"level"`
	Destination string `toml:"destination"`
}

// Config is the root configuration structure.
type Config struct {
	Providers   ProvidersConfig   `toml:"providers"`
	AudioCfg    AudioConfig       `toml:"audio"`
	LocalCfg    LocalServerConfig `toml:"local_server"`
	CacheCfg    CacheConfig       `toml:"cache"`
	TimeoutsCfg TimeoutsConfig    `toml:"timeouts"`
	Log         LogConfig         `toml:"log"`
}

// Load loads the configuration for speakctl via the shared configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills in the sensible defaults SPEC_FULL §4.17 and §5
// promise even when a key is absent from the TOML file.
func applyDefaults(cfg *Config) {
	if cfg.AudioCfg.DefaultFormat == "" {
		cfg.AudioCfg.DefaultFormat = "mp3"
	}

	if cfg.AudioCfg.DecoderBinary == "" {
		cfg.AudioCfg.DecoderBinary = "ffplay"
	}

	if cfg.AudioCfg.TranscoderBinary == "" {
		cfg.AudioCfg.TranscoderBinary = "ffmpeg"
	}

	if cfg.LocalCfg.Host == "" {
		cfg.LocalCfg.Host = "localhost"
	}

	if cfg.LocalCfg.Port == 0 {
		cfg.LocalCfg.Port = 12345
	}

	if cfg.LocalCfg.Binary == "" {
		cfg.LocalCfg.Binary = "local-tts-server"
	}

	if cfg.LocalCfg.StartupTimeoutSeconds == 0 {
		cfg.LocalCfg.StartupTimeoutSeconds = 30
	}

	if cfg.TimeoutsCfg.ConnectSeconds == 0 {
		cfg.TimeoutsCfg.ConnectSeconds = 10
	}

	if cfg.TimeoutsCfg.ReadSeconds == 0 {
		cfg.TimeoutsCfg.ReadSeconds = 30
	}

	if cfg.TimeoutsCfg.DecoderStartupSeconds == 0 {
		cfg.TimeoutsCfg.DecoderStartupSeconds = 2
	}

	if cfg.TimeoutsCfg.DecoderIdleSeconds == 0 {
		cfg.TimeoutsCfg.DecoderIdleSeconds = 5
	}

	if cfg.TimeoutsCfg.TranscoderSeconds == 0 {
		cfg.TimeoutsCfg.TranscoderSeconds = 30
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Reader is the narrow, typed-getter interface every other component reads
// configuration through (SPEC_FULL §4.17). No component outside this package
// unmarshals TOML directly.
type Reader interface {
	Provider(id string) ProviderConfig
	DefaultProviderID() string
	Audio() AudioConfig
	LocalServer() LocalServerConfig
	Cache() CacheConfig
	Timeouts() TimeoutsConfig
}

// Provider returns the settings for the named provider id, or the zero
// value if unknown.
func (c *Config) Provider(id string) ProviderConfig {
	switch id {
	case "edge":
		return c.Providers.Edge
	case "openai":
		return c.Providers.OpenAI
	case "elevenlabs":
		return c.Providers.ElevenLabs
	case "google":
		return c.Providers.Google
	case "local":
		return c.Providers.Local
	default:
		return ProviderConfig{}
	}
}

// DefaultProviderID returns the configured default provider id, falling
// back to "edge" (the only provider requiring no credentials).
func (c *Config) DefaultProviderID() string {
	if c.Providers.DefaultID == "" {
		return "edge"
	}

	return c.Providers.DefaultID
}

// Audio returns the audio defaults.
func (c *Config) Audio() AudioConfig { return c.AudioCfg }

// LocalServer returns the local synthesis server settings.
func (c *Config) LocalServer() LocalServerConfig { return c.LocalCfg }

// Cache returns the cache locations.
func (c *Config) Cache() CacheConfig { return c.CacheCfg }

// Timeouts returns the configurable timeout overrides.
func (c *Config) Timeouts() TimeoutsConfig { return c.TimeoutsCfg }
