package config

import (
	"fmt"
	"time"

	redisclient "github.com/vietddude/blockstream/internal/infra/redis"
	"github.com/vietddude/blockstream/internal/infra/storage/postgres"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "5s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Stream    StreamConfig       `yaml:"stream"`
	Providers []ProviderConfig   `yaml:"providers"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
}

// ServerConfig holds health/metrics server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StreamConfig holds polling cadence settings.
type StreamConfig struct {
	PollInterval        Duration `yaml:"poll_interval"`
	BlockDelayThreshold Duration `yaml:"block_delay_threshold"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ProviderConfig holds settings for one RPC provider.
type ProviderConfig struct {
	Name    string   `yaml:"name"`
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}
