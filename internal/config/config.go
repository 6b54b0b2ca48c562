// Package config provides the configuration structure for the narrator
// service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"

	"github.com/book-expert/narrator/internal/text"
)

// Defaults applied by Normalize when a field is unset.
const (
	defaultSpeed            = 1.0
	defaultCacheMaxAgeHours = 24 * 7
	defaultTimeoutSeconds   = 60
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	NarrationSubject       string `toml:"narration_subject"`
	TextObjectStoreBucket  string `toml:"text_object_store_bucket"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	CacheBucket            string `toml:"cache_bucket"`
}

// SpeechConfig holds the networked speech backend settings.
type SpeechConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// GenerationConfig holds the default narration settings.
type GenerationConfig struct {
	ChunkSize        int     `toml:"chunk_size"`
	Speed            float64 `toml:"speed"`
	Voice            string  `toml:"voice"`
	CacheMaxAgeHours int     `toml:"cache_max_age_hours"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Speech     SpeechConfig     `toml:"speech"`
	Generation GenerationConfig `toml:"generation"`
	Paths      PathsConfig      `toml:"paths"`
}

// Load loads the configuration for the narrator service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.Normalize()

	return &cfg, nil
}

// Normalize fills unset fields with service defaults.
func (c *Config) Normalize() {
	if c.Generation.ChunkSize <= 0 {
		c.Generation.ChunkSize = text.DefaultChunkSize
	}

	if c.Generation.Speed == 0 {
		c.Generation.Speed = defaultSpeed
	}

	if c.Generation.CacheMaxAgeHours <= 0 {
		c.Generation.CacheMaxAgeHours = defaultCacheMaxAgeHours
	}

	if c.Speech.TimeoutSeconds <= 0 {
		c.Speech.TimeoutSeconds = defaultTimeoutSeconds
	}
}
