// Package core defines the shared types and interfaces for the narration engine.
package core

import (
	"math"
	"time"
)

// EngineClass identifies the capability tier a voice belongs to.
type EngineClass string

const (
	// EngineRealtime is an on-device capability that synthesizes at playback time.
	EngineRealtime EngineClass = "realtime"
	// EngineNetworked is a remote capability that returns pre-rendered audio bytes.
	EngineNetworked EngineClass = "networked"
)

// SpeedTolerance is the maximum speed difference under which two settings are
// still considered equivalent for cache reuse.
const SpeedTolerance = 0.1

// Speed limits accepted by both capability classes.
const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// VoiceDescriptor identifies a synthesizable voice.
type VoiceDescriptor struct {
	Engine   EngineClass `json:"engine"`
	ID       string      `json:"id"`
	Language string      `json:"language"`
	// Speakers maps speaker names to speaker identifiers for multi-speaker
	// voices. Nil for single-speaker voices.
	Speakers map[string]string `json:"speakers,omitempty"`
}

// GenerationSettings captures everything that determines the audio produced
// for a piece of text.
type GenerationSettings struct {
	Engine    EngineClass `json:"engine"`
	VoiceID   string      `json:"voice_id"`
	Speed     float64     `json:"speed"`
	Speaker   string      `json:"speaker,omitempty"`
	ChunkSize int         `json:"chunk_size"`
}

// EquivalentTo reports whether audio generated under s can be reused for o.
// Engine, voice, speaker and chunk size must match exactly; speed may drift
// by less than SpeedTolerance.
func (s GenerationSettings) EquivalentTo(o GenerationSettings) bool {
	if s.Engine != o.Engine || s.VoiceID != o.VoiceID || s.Speaker != o.Speaker {
		return false
	}

	if s.ChunkSize != o.ChunkSize {
		return false
	}

	return math.Abs(s.Speed-o.Speed) < SpeedTolerance
}

// AudioUnit is the playable representation of one chunk under one engine.
// Networked units carry encoded audio bytes; realtime units carry the text,
// voice and speed to synthesize live at playback time.
type AudioUnit struct {
	Index       int         `json:"index"`
	Engine      EngineClass `json:"engine"`
	Text        string      `json:"text"`
	VoiceID     string      `json:"voice_id"`
	Speed       float64     `json:"speed"`
	Speaker     string      `json:"speaker,omitempty"`
	Audio       []byte      `json:"audio,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
}

// IsRealtime reports whether the unit defers synthesis to playback time.
func (u AudioUnit) IsRealtime() bool {
	return u.Engine == EngineRealtime
}

// CacheEntry is the metadata recorded alongside a cached audio payload.
type CacheEntry struct {
	Key         string      `json:"key"`
	Engine      EngineClass `json:"engine"`
	VoiceID     string      `json:"voice_id"`
	Speaker     string      `json:"speaker,omitempty"`
	TextHash    string      `json:"text_hash"`
	ContentType string      `json:"content_type,omitempty"`
	SizeBytes   int64       `json:"size_bytes"`
	CreatedAt   time.Time   `json:"created_at"`
}

// CacheStats summarizes the state of the tiered audio cache.
type CacheStats struct {
	EntryCount    int   `json:"entry_count"`
	TotalBytes    int64 `json:"total_bytes"`
	HotEntryCount int   `json:"hot_entry_count"`
}

// RemoteAudioRecord associates a document with the remote object paths holding
// its narration. Paths are in playback order; a record with fewer paths than
// ChunkCount is partial and callers should prefer regeneration.
type RemoteAudioRecord struct {
	OwnerID    string             `json:"owner_id"`
	DocumentID string             `json:"document_id"`
	Paths      []string           `json:"paths"`
	Settings   GenerationSettings `json:"settings"`
	ChunkCount int                `json:"chunk_count"`
	SavedAt    time.Time          `json:"saved_at"`
}

// Partial reports whether some units failed to persist when the record was
// written.
func (r RemoteAudioRecord) Partial() bool {
	return len(r.Paths) < r.ChunkCount
}

// PlaybackState is a snapshot of the queue manager. IsPlaying and IsPaused are
// never simultaneously true.
type PlaybackState struct {
	CurrentIndex int         `json:"current_index"`
	QueueLength  int         `json:"queue_length"`
	IsPlaying    bool        `json:"is_playing"`
	IsPaused     bool        `json:"is_paused"`
	Engine       EngineClass `json:"engine"`
	VoiceID      string      `json:"voice_id"`
	Speed        float64     `json:"speed"`
}
