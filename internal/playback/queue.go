package playback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/book-expert/logger"

	"github.com/book-expert/narrator/internal/core"
)

// Lifecycle topics published on the event bus.
const (
	// TopicStarted fires once per Play call, with the starting index.
	TopicStarted = "playback.started"
	// TopicEnded fires when the queue runs out or playback is stopped.
	TopicEnded = "playback.ended"
	// TopicChunk fires on every current-index change, with the new index.
	TopicChunk = "playback.chunk"
)

// Static errors.
var (
	// ErrNoQueue indicates an operation that needs a loaded queue.
	ErrNoQueue = errors.New("no queue loaded")
	// ErrIndexOutOfRange indicates a seek outside the queue bounds.
	ErrIndexOutOfRange = errors.New("chunk index out of range")
	// ErrNoDriver indicates no playback driver handles the queue's engine
	// class.
	ErrNoDriver = errors.New("no playback driver for engine class")
)

// Log format strings.
const (
	logFmtUnitFailed   = "Unit %d failed, skipping: %v"
	logFmtQueueLoaded  = "Loaded queue of %d units (%s/%s)"
	logFmtStaleDone    = "Ignoring completion of superseded unit (generation %d)"
	logFmtPlayFailed   = "Could not start unit %d: %v"
	logFmtQueueDrained = "Queue drained after unit %d"
)

type managerState int

const (
	stateIdle managerState = iota
	stateLoaded
	statePlaying
	statePaused
	stateStopped
)

// queueEvent is an event bus publication deferred until the manager lock is
// released.
type queueEvent struct {
	topic string
	index int
}

// QueueManager owns the active playback queue and serializes all access to
// the single voice output device. All methods are safe for concurrent use;
// internally every transition happens under one mutex, and driver completion
// callbacks carry a generation token so a unit stopped by Stop, Next or a
// queue reload cannot advance the new queue.
type QueueManager struct {
	drivers map[core.EngineClass]Driver
	bus     EventBus.Bus
	log     *logger.Logger

	mu       sync.Mutex
	state    managerState
	queue    []core.AudioUnit
	settings core.GenerationSettings
	index    int
	driver   Driver
	playGen  uint64
	inFlight bool
}

// NewQueueManager creates an idle manager. The drivers map holds one driver
// per engine class present on this host.
func NewQueueManager(
	drivers map[core.EngineClass]Driver,
	bus EventBus.Bus,
	log *logger.Logger,
) *QueueManager {
	return &QueueManager{
		drivers: drivers,
		bus:     bus,
		log:     log,
		state:   stateIdle,
	}
}

// LoadQueue replaces any prior queue with the given units, cueing the first
// unit without sounding it. Prior playback is cancelled and its resources
// discarded.
func (m *QueueManager) LoadQueue(units []core.AudioUnit, settings core.GenerationSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	driver, ok := m.drivers[settings.Engine]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoDriver, settings.Engine)
	}

	m.cancelActiveLocked()

	m.queue = units
	m.settings = settings
	m.index = 0
	m.driver = driver
	m.state = stateLoaded

	m.log.Info(logFmtQueueLoaded, len(units), settings.Engine, settings.VoiceID)

	return nil
}

// Play begins playback at the current index. On an empty queue it is a
// silent no-op. Calling Play while already playing or paused does nothing;
// use Resume to leave pause.
func (m *QueueManager) Play() error {
	m.mu.Lock()

	if len(m.queue) == 0 || m.state == statePlaying || m.state == statePaused {
		m.mu.Unlock()

		return nil
	}

	if m.state == stateStopped {
		m.index = 0
	}

	m.state = statePlaying
	startIndex := m.index
	events := m.startCurrentLocked()

	m.mu.Unlock()

	m.publish(queueEvent{topic: TopicStarted, index: startIndex})
	m.publishAll(events)

	return nil
}

// Pause suspends the active unit in place.
func (m *QueueManager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != statePlaying {
		return nil
	}

	err := m.driver.Pause()
	if err != nil {
		return fmt.Errorf("pausing playback: %w", err)
	}

	m.state = statePaused

	return nil
}

// Resume continues from pause. When the driver cannot resume mid-unit, the
// current unit restarts from its beginning instead.
func (m *QueueManager) Resume() error {
	m.mu.Lock()

	if m.state != statePaused {
		m.mu.Unlock()

		return nil
	}

	m.state = statePlaying

	var events []queueEvent

	// A suspended unit resumes in place when the driver supports it. When
	// the driver cannot, or pause left nothing in flight (a cue via
	// next/previous while paused), the current unit starts from its
	// beginning.
	if m.inFlight && m.driver.SupportsResume() {
		err := m.driver.Resume()
		if err != nil {
			m.mu.Unlock()

			return fmt.Errorf("resuming playback: %w", err)
		}
	} else {
		m.cancelActiveLocked()
		events = m.startCurrentLocked()
	}

	m.mu.Unlock()
	m.publishAll(events)

	return nil
}

// Next advances to the following unit. If playback was active at the moment
// of the call the new unit starts sounding immediately; otherwise it is
// cued silently.
func (m *QueueManager) Next() error {
	return m.moveTo(func(current, length int) int {
		return clamp(current+1, length)
	})
}

// Previous moves back one unit, with the same sounding-or-cued rule as
// Next.
func (m *QueueManager) Previous() error {
	return m.moveTo(func(current, length int) int {
		return clamp(current-1, length)
	})
}

// SeekToChunk jumps to an arbitrary index. Out-of-range requests are
// rejected without any state change.
func (m *QueueManager) SeekToChunk(index int) error {
	m.mu.Lock()
	length := len(m.queue)
	m.mu.Unlock()

	if index < 0 || index >= length {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, length)
	}

	return m.moveTo(func(_, _ int) int {
		return index
	})
}

// Stop cancels any in-flight unit, rewinds to the first unit and emits the
// playback-ended event. The queue stays loaded; Play starts it over.
func (m *QueueManager) Stop() error {
	m.mu.Lock()

	if m.state == stateIdle {
		m.mu.Unlock()

		return nil
	}

	m.cancelActiveLocked()
	m.index = 0
	m.state = stateStopped

	m.mu.Unlock()

	m.publish(queueEvent{topic: TopicEnded, index: 0})

	return nil
}

// Cleanup stops playback, releases the queue and returns to Idle.
func (m *QueueManager) Cleanup() error {
	err := m.Stop()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.queue = nil
	m.driver = nil
	m.settings = core.GenerationSettings{}
	m.state = stateIdle
	m.mu.Unlock()

	return nil
}

// State reports a consistent snapshot of the playback state.
func (m *QueueManager) State() core.PlaybackState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return core.PlaybackState{
		CurrentIndex: m.index,
		QueueLength:  len(m.queue),
		IsPlaying:    m.state == statePlaying,
		IsPaused:     m.state == statePaused,
		Engine:       m.settings.Engine,
		VoiceID:      m.settings.VoiceID,
		Speed:        m.settings.Speed,
	}
}

// moveTo implements the shared next/previous/seek transition: stop the
// active unit cleanly, move the index, and start sounding again only if
// playback was active when the call was made.
func (m *QueueManager) moveTo(target func(current, length int) int) error {
	m.mu.Lock()

	if m.state == stateIdle || len(m.queue) == 0 {
		m.mu.Unlock()

		return ErrNoQueue
	}

	wasPlaying := m.state == statePlaying

	m.cancelActiveLocked()
	m.index = target(m.index, len(m.queue))

	events := []queueEvent{{topic: TopicChunk, index: m.index}}

	if wasPlaying {
		events = append(events, m.startCurrentLocked()...)
	}

	m.mu.Unlock()
	m.publishAll(events)

	return nil
}

// startCurrentLocked starts the unit at the current index, skipping over
// units that fail to start. Returns the events to publish once the lock is
// released. Caller holds the lock and has set state to Playing.
func (m *QueueManager) startCurrentLocked() []queueEvent {
	var events []queueEvent

	for m.index < len(m.queue) {
		m.playGen++
		generation := m.playGen
		unit := m.queue[m.index]

		err := m.driver.Play(unit, func(playErr error) {
			m.onUnitDone(generation, playErr)
		})
		if err == nil {
			m.inFlight = true

			return events
		}

		m.log.Warn(logFmtPlayFailed, unit.Index, err)

		m.index++
		if m.index < len(m.queue) {
			events = append(events, queueEvent{topic: TopicChunk, index: m.index})
		}
	}

	// Ran off the end without a startable unit.
	m.index = 0
	m.state = stateStopped
	m.inFlight = false
	events = append(events, queueEvent{topic: TopicEnded, index: 0})

	return events
}

// onUnitDone handles a driver completion callback. Completions from
// superseded generations (stopped, skipped or reloaded units) are dropped.
func (m *QueueManager) onUnitDone(generation uint64, playErr error) {
	m.mu.Lock()

	if generation != m.playGen || m.state != statePlaying {
		m.log.Info(logFmtStaleDone, generation)
		m.mu.Unlock()

		return
	}

	if playErr != nil {
		m.log.Warn(logFmtUnitFailed, m.queue[m.index].Index, playErr)
	}

	m.inFlight = false
	m.index++

	var events []queueEvent

	if m.index >= len(m.queue) {
		m.log.Info(logFmtQueueDrained, len(m.queue)-1)

		m.index = 0
		m.state = stateStopped
		events = append(events, queueEvent{topic: TopicEnded, index: 0})
	} else {
		events = append(events, queueEvent{topic: TopicChunk, index: m.index})
		events = append(events, m.startCurrentLocked()...)
	}

	m.mu.Unlock()
	m.publishAll(events)
}

// cancelActiveLocked invalidates any outstanding completion callback and
// stops the driver. Caller holds the lock.
func (m *QueueManager) cancelActiveLocked() {
	m.playGen++
	m.inFlight = false

	if m.driver != nil && (m.state == statePlaying || m.state == statePaused) {
		stopErr := m.driver.Stop()
		if stopErr != nil {
			m.log.Warn("Stopping active unit: %v", stopErr)
		}
	}
}

func (m *QueueManager) publish(event queueEvent) {
	if m.bus != nil {
		m.bus.Publish(event.topic, event.index)
	}
}

func (m *QueueManager) publishAll(events []queueEvent) {
	for _, event := range events {
		m.publish(event)
	}
}

func clamp(index, length int) int {
	if index < 0 {
		return 0
	}

	if index >= length {
		return length - 1
	}

	return index
}
