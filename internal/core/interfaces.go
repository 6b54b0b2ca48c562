package core

import (
	"context"
	"time"
)

// ObjectStore is the durable remote backing for saved narrations. Keys are
// slash-separated paths; Remove must be idempotent.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Download(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, paths []string) error
}

// DurableEntry describes one record in a DurableStore, indexed by creation
// time to support age-based eviction.
type DurableEntry struct {
	Key       string
	CreatedAt time.Time
	SizeBytes int64
}

// DurableStore is the local persistent tier of the audio cache. Get returns
// ErrNotFound for absent keys.
type DurableStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Entries(ctx context.Context) ([]DurableEntry, error)
	Delete(ctx context.Context, keys []string) error
	Clear(ctx context.Context) error
}

// SpeechEvents carries the playback lifecycle callbacks for a realtime
// utterance. Any field may be nil.
type SpeechEvents struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
}

// RealtimeSpeech is an on-device speech capability that speaks through the
// host's single voice output device. Only one utterance may be active at a
// time; Cancel must prevent any further event callbacks from the cancelled
// utterance.
type RealtimeSpeech interface {
	ListVoices(ctx context.Context) ([]VoiceDescriptor, error)
	Speak(ctx context.Context, text, voiceID string, speed float64, events SpeechEvents) error
	Pause() error
	Resume() error
	Cancel() error
	// CanResume reports whether the capability supports true mid-utterance
	// resume. When false, resuming restarts the current chunk.
	CanResume() bool
}

// NetworkedSpeech is a remote speech capability that returns pre-rendered
// encoded audio bytes together with their content type.
type NetworkedSpeech interface {
	ListVoices(ctx context.Context) ([]VoiceDescriptor, error)
	Synthesize(ctx context.Context, text, voiceID string, speed float64, speaker string) ([]byte, string, error)
	Health(ctx context.Context) error
}
