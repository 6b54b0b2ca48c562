// Package playback drives ordered audio-unit queues through a single voice
// output device, one unit sounding at a time.
package playback

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/narrator/internal/core"
)

// Driver plays one audio unit at a time through the host's audio output.
// Play must not invoke done synchronously; done fires exactly once when the
// unit finishes or fails, and never after Stop.
type Driver interface {
	Play(unit core.AudioUnit, done func(error)) error
	Pause() error
	Resume() error
	Stop() error
	// SupportsResume reports whether Pause/Resume keep the position within
	// the current unit. When false, resuming restarts the unit.
	SupportsResume() bool
}

// realtimeDriver adapts a core.RealtimeSpeech capability to the Driver
// surface. Each unit is one utterance.
type realtimeDriver struct {
	speech core.RealtimeSpeech
	log    *logger.Logger
}

// NewRealtimeDriver wraps an on-device speech capability as a playback
// driver.
func NewRealtimeDriver(speech core.RealtimeSpeech, log *logger.Logger) Driver {
	return &realtimeDriver{
		speech: speech,
		log:    log,
	}
}

func (d *realtimeDriver) Play(unit core.AudioUnit, done func(error)) error {
	if !unit.IsRealtime() {
		return fmt.Errorf(
			"%w: realtime driver cannot play encoded unit %d",
			core.ErrUnsupportedCapability, unit.Index,
		)
	}

	events := core.SpeechEvents{
		OnStart: nil,
		OnEnd:   func() { done(nil) },
		OnError: func(err error) { done(err) },
	}

	err := d.speech.Speak(context.Background(), unit.Text, unit.VoiceID, unit.Speed, events)
	if err != nil {
		return fmt.Errorf("starting utterance for unit %d: %w", unit.Index, err)
	}

	return nil
}

func (d *realtimeDriver) Pause() error {
	err := d.speech.Pause()
	if err != nil {
		return fmt.Errorf("pausing utterance: %w", err)
	}

	return nil
}

func (d *realtimeDriver) Resume() error {
	err := d.speech.Resume()
	if err != nil {
		return fmt.Errorf("resuming utterance: %w", err)
	}

	return nil
}

// Stop cancels the in-flight utterance. The capability guarantees no
// callbacks fire after Cancel, so the queue manager sees no stale done.
func (d *realtimeDriver) Stop() error {
	err := d.speech.Cancel()
	if err != nil {
		return fmt.Errorf("cancelling utterance: %w", err)
	}

	return nil
}

func (d *realtimeDriver) SupportsResume() bool {
	return d.speech.CanResume()
}
