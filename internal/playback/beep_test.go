package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCloser tracks whether the unit's streamer was released.
type recordingCloser struct {
	closed bool
}

func (c *recordingCloser) Close() error {
	c.closed = true

	return nil
}

// The speaker fires end-of-unit callbacks while holding its own lock, on
// its own goroutine. The callback must therefore return before the
// completion continuation runs, or an auto-advance that plays the next
// unit would re-enter the speaker and wedge it.
func TestFinishUnitReturnsBeforeCompletionRuns(t *testing.T) {
	t.Parallel()

	closer := &recordingCloser{}
	release := make(chan struct{})
	doneRan := make(chan struct{})

	var gotErr error

	callback := finishUnit(closer, func(err error) {
		gotErr = err

		<-release
		close(doneRan)
	})

	// Blocks forever if the completion is delivered on this goroutine.
	callback()

	close(release)

	select {
	case <-doneRan:
	case <-time.After(time.Second):
		t.Fatal("completion was never delivered")
	}

	require.NoError(t, gotErr)
	assert.True(t, closer.closed, "streamer must be closed before completion")
}
