//go:build windows

package speech

import "os"

// Windows has no job-control signals; pausing stops the utterance and resume
// restarts the current chunk from its beginning.
const platformSupportsResume = false

func suspendProcess(process *os.Process) error {
	return process.Kill()
}

func continueProcess(_ *os.Process) error {
	return nil
}
