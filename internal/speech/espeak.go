package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/narrator/internal/core"
)

// baseWordsPerMinute is espeak's default speaking rate; the speed multiplier
// scales it.
const baseWordsPerMinute = 175

// ErrAlreadySpeaking indicates an utterance is already active on the single
// host voice device.
var ErrAlreadySpeaking = errors.New("an utterance is already active")

// espeakCandidates are the executables probed in order.
var espeakCandidates = []string{"espeak-ng", "espeak"}

// ESpeakSpeech implements core.RealtimeSpeech by driving an espeak
// subprocess. The process-wide voice device maps to one subprocess at a time.
type ESpeakSpeech struct {
	mu         sync.Mutex
	binaryPath string
	log        *logger.Logger

	cmd       *exec.Cmd
	cancelled bool
	speaking  bool
}

// NewESpeakSpeech probes for an espeak installation and returns
// core.ErrUnsupportedCapability when none is present, so callers can fall
// back to networked-only operation.
func NewESpeakSpeech(log *logger.Logger) (*ESpeakSpeech, error) {
	binaryPath, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrUnsupportedCapability, err)
	}

	versionErr := exec.Command(binaryPath, "--version").Run()
	if versionErr != nil {
		return nil, fmt.Errorf("%w: espeak probe failed: %w", core.ErrUnsupportedCapability, versionErr)
	}

	return &ESpeakSpeech{
		binaryPath: binaryPath,
		log:        log,
	}, nil
}

func findESpeakExecutable() (string, error) {
	for _, candidate := range espeakCandidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}

	return "", errors.New("espeak executable not found in PATH")
}

// Speak starts speaking text and returns immediately. Events fire from a
// background goroutine; after Cancel no further events fire.
func (e *ESpeakSpeech) Speak(
	ctx context.Context,
	text, voiceID string,
	speed float64,
	events core.SpeechEvents,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.speaking {
		return ErrAlreadySpeaking
	}

	args := []string{"-s", strconv.Itoa(int(baseWordsPerMinute * speed))}
	if voiceID != "" && voiceID != "default" {
		args = append(args, "-v", voiceID)
	}

	args = append(args, text)

	cmd := exec.CommandContext(ctx, e.binaryPath, args...)

	err := cmd.Start()
	if err != nil {
		return fmt.Errorf("failed to start espeak: %w", err)
	}

	e.cmd = cmd
	e.cancelled = false
	e.speaking = true

	if events.OnStart != nil {
		events.OnStart()
	}

	go e.await(cmd, events)

	return nil
}

// await waits for the utterance to finish and delivers the terminal event,
// unless the utterance was cancelled in the meantime.
func (e *ESpeakSpeech) await(cmd *exec.Cmd, events core.SpeechEvents) {
	waitErr := cmd.Wait()

	e.mu.Lock()
	cancelled := e.cancelled
	e.speaking = false
	e.cmd = nil
	e.mu.Unlock()

	if cancelled {
		return
	}

	if waitErr != nil {
		e.log.Warn("espeak utterance exited abnormally: %v", waitErr)

		if events.OnError != nil {
			events.OnError(fmt.Errorf("espeak exited abnormally: %w", waitErr))
		}

		return
	}

	if events.OnEnd != nil {
		events.OnEnd()
	}
}

// Pause suspends the active utterance in place where the platform supports
// it.
func (e *ESpeakSpeech) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}

	return suspendProcess(e.cmd.Process)
}

// Resume continues a paused utterance where the platform supports it.
func (e *ESpeakSpeech) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}

	return continueProcess(e.cmd.Process)
}

// Cancel kills any active utterance. No event callbacks fire afterwards.
func (e *ESpeakSpeech) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}

	e.cancelled = true

	err := e.cmd.Process.Kill()
	if err != nil {
		return fmt.Errorf("failed to cancel utterance: %w", err)
	}

	return nil
}

// CanResume reports whether pause leaves the utterance resumable in place on
// this platform.
func (e *ESpeakSpeech) CanResume() bool {
	return platformSupportsResume
}

// ListVoices parses the espeak voice table into descriptors.
func (e *ESpeakSpeech) ListVoices(ctx context.Context) ([]core.VoiceDescriptor, error) {
	output, err := exec.CommandContext(ctx, e.binaryPath, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list espeak voices: %w", err)
	}

	return parseESpeakVoices(string(output)), nil
}

// parseESpeakVoices parses lines of the form:
//
//	Pty Language Age/Gender VoiceName File Other
func parseESpeakVoices(output string) []core.VoiceDescriptor {
	lines := strings.Split(output, "\n")
	voices := make([]core.VoiceDescriptor, 0, len(lines))

	for i, line := range lines {
		// Skip the header line.
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		voices = append(voices, core.VoiceDescriptor{
			Engine:   core.EngineRealtime,
			ID:       fields[3],
			Language: fields[1],
		})
	}

	return voices
}
