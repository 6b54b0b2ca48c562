package playback

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/book-expert/narrator/internal/core"
)

// speakerBufferLength keeps latency low while leaving headroom for decode
// stalls.
const speakerBufferLength = time.Second / 10

// BeepDriver plays encoded audio units through the host's default output
// device. Pause keeps the position within the current unit, so resume is
// true mid-unit resume.
type BeepDriver struct {
	log *logger.Logger

	mu         sync.Mutex
	ctrl       *beep.Ctrl
	streamer   beep.StreamSeekCloser
	sampleRate beep.SampleRate
}

// NewBeepDriver creates an encoded-audio playback driver.
func NewBeepDriver(log *logger.Logger) *BeepDriver {
	return &BeepDriver{log: log}
}

// Play decodes the unit and starts it on the speaker. The done callback
// is delivered from its own goroutine when the unit finishes; a prior
// Stop clears the speaker, so no stale done fires afterwards.
func (d *BeepDriver) Play(unit core.AudioUnit, done func(error)) error {
	if unit.IsRealtime() {
		return fmt.Errorf(
			"%w: encoded-audio driver cannot play realtime unit %d",
			core.ErrUnsupportedCapability, unit.Index,
		)
	}

	streamer, format, err := decodeAudio(unit)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Reinitialize only when the sample rate changes; Init drops whatever
	// the speaker was playing.
	if format.SampleRate != d.sampleRate {
		initErr := speaker.Init(format.SampleRate, format.SampleRate.N(speakerBufferLength))
		if initErr != nil {
			_ = streamer.Close()

			return fmt.Errorf("initializing speaker at %d Hz: %w", format.SampleRate, initErr)
		}

		d.sampleRate = format.SampleRate
	}

	d.streamer = streamer
	d.ctrl = &beep.Ctrl{Streamer: streamer, Paused: false}

	speaker.Play(beep.Seq(d.ctrl, beep.Callback(finishUnit(streamer, done))))

	return nil
}

// finishUnit returns the end-of-unit speaker callback. The speaker invokes
// it while holding its own lock, so completion must leave that goroutine
// before the continuation touches the speaker again.
func finishUnit(streamer io.Closer, done func(error)) func() {
	return func() {
		go func() {
			_ = streamer.Close()
			done(nil)
		}()
	}
}

func (d *BeepDriver) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctrl == nil {
		return nil
	}

	speaker.Lock()
	d.ctrl.Paused = true
	speaker.Unlock()

	return nil
}

func (d *BeepDriver) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctrl == nil {
		return nil
	}

	speaker.Lock()
	d.ctrl.Paused = false
	speaker.Unlock()

	return nil
}

// Stop clears the speaker queue. The cleared unit's completion callback
// never fires.
func (d *BeepDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	speaker.Clear()

	if d.streamer != nil {
		_ = d.streamer.Close()
		d.streamer = nil
	}

	d.ctrl = nil

	return nil
}

func (d *BeepDriver) SupportsResume() bool {
	return true
}

func decodeAudio(unit core.AudioUnit) (beep.StreamSeekCloser, beep.Format, error) {
	reader := bytes.NewReader(unit.Audio)

	switch {
	case strings.Contains(unit.ContentType, "mpeg"), strings.Contains(unit.ContentType, "mp3"):
		streamer, format, err := mp3.Decode(io.NopCloser(reader))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf(
				"%w: unit %d as mp3: %v", core.ErrDecode, unit.Index, err,
			)
		}

		return streamer, format, nil
	default:
		streamer, format, err := wav.Decode(reader)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf(
				"%w: unit %d as wav: %v", core.ErrDecode, unit.Index, err,
			)
		}

		return streamer, format, nil
	}
}
