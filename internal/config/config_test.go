// Package config_test tests the configuration loading for the narrator
// service.
package config_test

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/narrator/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[nats]
url = "nats://127.0.0.1:4222"
narration_subject = "narration.requested"
text_object_store_bucket = "TEXT_FILES"
audio_object_store_bucket = "AUDIO_FILES"
cache_bucket = "NARRATION_CACHE"

[speech]
base_url = "http://127.0.0.1:8880"
timeout_seconds = 300

[generation]
chunk_size = 400
speed = 1.25
voice = "af_bella"
cache_max_age_hours = 48

[paths]
base_logs_dir = "/var/log/narrator"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "narration.requested", cfg.NATS.NarrationSubject)
	assert.Equal(t, "TEXT_FILES", cfg.NATS.TextObjectStoreBucket)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)
	assert.Equal(t, "NARRATION_CACHE", cfg.NATS.CacheBucket)
	assert.Equal(t, "http://127.0.0.1:8880", cfg.Speech.BaseURL)
	assert.Equal(t, 300, cfg.Speech.TimeoutSeconds)
	assert.Equal(t, 400, cfg.Generation.ChunkSize)
	assert.InEpsilon(t, 1.25, cfg.Generation.Speed, 0.001)
	assert.Equal(t, "af_bella", cfg.Generation.Voice)
	assert.Equal(t, 48, cfg.Generation.CacheMaxAgeHours)
	assert.Equal(t, "/var/log/narrator", cfg.Paths.BaseLogsDir)
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.Normalize()

	assert.Equal(t, 500, cfg.Generation.ChunkSize)
	assert.InEpsilon(t, 1.0, cfg.Generation.Speed, 0.001)
	assert.Positive(t, cfg.Generation.CacheMaxAgeHours)
	assert.Positive(t, cfg.Speech.TimeoutSeconds)
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Generation.ChunkSize = 250
	cfg.Generation.Speed = 1.5
	cfg.Speech.TimeoutSeconds = 10

	cfg.Normalize()

	assert.Equal(t, 250, cfg.Generation.ChunkSize)
	assert.InEpsilon(t, 1.5, cfg.Generation.Speed, 0.001)
	assert.Equal(t, 10, cfg.Speech.TimeoutSeconds)
}
