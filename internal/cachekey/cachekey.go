// Package cachekey derives stable, filesystem-safe cache identifiers for
// generated audio.
package cachekey

import (
	"crypto/md5" // #nosec G501 -- keys need stability, not cryptographic strength
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/narrator/internal/core"
)

const (
	// voiceIDPrefixLength keeps the human-legible part of the key short.
	voiceIDPrefixLength = 8
	// hashLength truncates the tuple hash; 16 hex chars keep collisions
	// negligible for per-user cache sizes.
	hashLength = 16

	tupleSeparator = "|"
	partSeparator  = "-"
)

// Generator derives cache keys from text and generation settings. It never
// fails: on an internal panic it degrades to a unique non-reusable key and
// logs loudly, trading one cache hit for the caller staying alive.
type Generator struct {
	log *logger.Logger
}

// New creates a key generator.
func New(log *logger.Logger) *Generator {
	return &Generator{log: log}
}

// Key returns a deterministic key for the normalized (text, settings) tuple.
// Identical semantic inputs produce identical keys; any changed input changes
// the key with overwhelming probability.
func (g *Generator) Key(text string, settings core.GenerationSettings) (key string) {
	defer func() {
		if r := recover(); r != nil {
			key = g.fallbackKey(settings)

			g.log.Warn(
				"Cache key derivation failed (%v); using degraded key %s, this text will not hit the cache",
				r, key,
			)
		}
	}()

	normalized := normalizeText(text)

	tuple := strings.Join([]string{
		normalized,
		string(settings.Engine),
		settings.VoiceID,
		quantizeSpeed(settings.Speed),
		settings.Speaker,
	}, tupleSeparator)

	sum := md5.Sum([]byte(tuple)) // #nosec G401
	digest := hex.EncodeToString(sum[:])[:hashLength]

	return legiblePrefix(settings) + partSeparator + digest
}

// TextHash returns the hash of the normalized text alone, recorded in cache
// entry metadata for debugging.
func (g *Generator) TextHash(text string) string {
	sum := md5.Sum([]byte(normalizeText(text))) // #nosec G401

	return hex.EncodeToString(sum[:])[:hashLength]
}

// normalizeText makes keys insensitive to incidental case and whitespace
// differences introduced upstream.
func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// quantizeSpeed buckets speed to one decimal so speeds within the settings
// equivalence tolerance land on the same key.
func quantizeSpeed(speed float64) string {
	return fmt.Sprintf("%.1f", speed)
}

// legiblePrefix builds the debuggable part of the key: engine tag, truncated
// voice id and speed, with a speaker suffix when present.
func legiblePrefix(settings core.GenerationSettings) string {
	voice := sanitize(settings.VoiceID)
	if len(voice) > voiceIDPrefixLength {
		voice = voice[:voiceIDPrefixLength]
	}

	speed := strings.ReplaceAll(quantizeSpeed(settings.Speed), ".", "_")

	parts := []string{string(settings.Engine), voice, speed}
	if settings.Speaker != "" {
		parts = append(parts, sanitize(settings.Speaker))
	}

	return strings.Join(parts, partSeparator)
}

// sanitize keeps keys filesystem- and KV-bucket-safe.
func sanitize(s string) string {
	var b strings.Builder

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}

func (g *Generator) fallbackKey(settings core.GenerationSettings) string {
	return strings.Join(
		[]string{string(settings.Engine), sanitize(settings.VoiceID), uuid.NewString()},
		partSeparator,
	)
}
