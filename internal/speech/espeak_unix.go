//go:build !windows

package speech

import (
	"fmt"
	"os"
	"syscall"
)

// Unix espeak processes can be suspended and continued with job-control
// signals, which gives true mid-utterance pause/resume.
const platformSupportsResume = true

func suspendProcess(process *os.Process) error {
	err := process.Signal(syscall.SIGSTOP)
	if err != nil {
		return fmt.Errorf("failed to suspend utterance: %w", err)
	}

	return nil
}

func continueProcess(process *os.Process) error {
	err := process.Signal(syscall.SIGCONT)
	if err != nil {
		return fmt.Errorf("failed to resume utterance: %w", err)
	}

	return nil
}
