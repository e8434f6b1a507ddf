// Package config loads and validates the server configuration from YAML,
// with environment variable expansion for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/murmurlabs/voiceloop/audio"
	"github.com/murmurlabs/voiceloop/logger"
)

// Defaults applied when the file omits a value.
const (
	DefaultServerAddr  = ":8090"
	DefaultServerPath  = "/voice"
	DefaultMetricsAddr = ":9100"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`
	Audio   AudioConfig   `yaml:"audio"`
	STT     STTConfig     `yaml:"stt"`
	TTS     TTSConfig     `yaml:"tts"`
	Chat    ChatConfig    `yaml:"chat"`
	Logging logger.Config `yaml:"logging"`
}

// ServerConfig configures the device websocket listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// RedisConfig configures the device profile store. An empty Addr selects
// the in-memory store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AudioConfig configures utterance capture and artifact storage.
type AudioConfig struct {
	// Dir is where per-turn WAV artifacts are saved. Empty disables saving.
	Dir string `yaml:"dir"`

	// VAD holds the voice activity detection parameters.
	VAD audio.Params `yaml:"vad"`
}

// STTConfig selects and configures the transcription provider.
type STTConfig struct {
	// Provider is "deepgram" or "whisper".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// TTSConfig selects and configures the synthesis provider.
type TTSConfig struct {
	// Provider is "elevenlabs".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Voice    string `yaml:"voice"`
	Model    string `yaml:"model"`
}

// ChatConfig configures the reply producer.
type ChatConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Default returns a configuration with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: DefaultServerAddr,
			Path: DefaultServerPath,
		},
		Metrics: MetricsConfig{
			Addr:    DefaultMetricsAddr,
			Enabled: true,
		},
		Audio: AudioConfig{
			VAD: audio.DefaultParams(),
		},
		STT: STTConfig{Provider: "deepgram"},
		TTS: TTSConfig{Provider: "elevenlabs"},
		Logging: logger.Config{
			Level:  "info",
			Format: logger.FormatText,
		},
	}
}

// Load reads a YAML config file, expanding ${VAR} references from the
// environment before parsing.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.Path == "" {
		return fmt.Errorf("server.path must not be empty")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must not be empty when metrics are enabled")
	}

	switch c.STT.Provider {
	case "deepgram", "whisper":
	default:
		return fmt.Errorf("stt.provider %q is not supported", c.STT.Provider)
	}
	switch c.TTS.Provider {
	case "elevenlabs":
	default:
		return fmt.Errorf("tts.provider %q is not supported", c.TTS.Provider)
	}

	if err := c.Audio.VAD.Validate(); err != nil {
		return fmt.Errorf("audio.vad: %w", err)
	}
	return nil
}
