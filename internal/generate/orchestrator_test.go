package generate_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/logger"
	"github.com/book-expert/narrator/internal/cachekey"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/generate"
)

var errSynthBoom = errors.New("synthesis exploded")

// mockCache is an in-memory stand-in for the tiered cache.
type mockCache struct {
	mu            sync.Mutex
	entries       map[string]core.AudioUnit
	putShouldFail bool
	putCalls      int
	getCalls      int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]core.AudioUnit)}
}

func (m *mockCache) Get(_ context.Context, key string) (core.AudioUnit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	unit, ok := m.entries[key]

	return unit, ok
}

func (m *mockCache) Put(_ context.Context, key string, unit core.AudioUnit, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.putCalls++

	if m.putShouldFail {
		return core.ErrCacheWrite
	}

	m.entries[key] = unit

	return nil
}

// mockNetworked records synthesis calls and can fail at a chosen chunk.
type mockNetworked struct {
	mu          sync.Mutex
	calls       []string
	failAtCall  int
	healthErr   error
	contentType string
}

func (m *mockNetworked) ListVoices(_ context.Context) ([]core.VoiceDescriptor, error) {
	return nil, nil
}

func (m *mockNetworked) Synthesize(
	_ context.Context, text, _ string, _ float64, _ string,
) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	callIndex := len(m.calls)
	m.calls = append(m.calls, text)

	if m.failAtCall >= 0 && callIndex == m.failAtCall {
		return nil, "", errSynthBoom
	}

	contentType := m.contentType
	if contentType == "" {
		contentType = "audio/wav"
	}

	return []byte("audio:" + text), contentType, nil
}

func (m *mockNetworked) Health(_ context.Context) error {
	return m.healthErr
}

// mockRealtime satisfies core.RealtimeSpeech; generation never invokes
// playback methods, so they are inert.
type mockRealtime struct{}

func (m *mockRealtime) ListVoices(_ context.Context) ([]core.VoiceDescriptor, error) {
	return nil, nil
}

func (m *mockRealtime) Speak(
	_ context.Context, _, _ string, _ float64, _ core.SpeechEvents,
) error {
	return nil
}

func (m *mockRealtime) Pause() error  { return nil }
func (m *mockRealtime) Resume() error { return nil }
func (m *mockRealtime) Cancel() error { return nil }

func (m *mockRealtime) CanResume() bool { return true }

func newTestOrchestrator(
	t *testing.T,
	cache generate.Cache,
	networked core.NetworkedSpeech,
) *generate.Orchestrator {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "generate-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { testLogger.Close() })

	keys := cachekey.New(testLogger)

	return generate.New(cache, keys, &mockRealtime{}, networked, testLogger)
}

func networkedVoice() core.VoiceDescriptor {
	return core.VoiceDescriptor{Engine: core.EngineNetworked, ID: "en-voice-1"}
}

func realtimeVoice() core.VoiceDescriptor {
	return core.VoiceDescriptor{Engine: core.EngineRealtime, ID: "en-us"}
}

func TestGenerateNetworkedOrderAndContent(t *testing.T) {
	t.Parallel()

	backend := &mockNetworked{failAtCall: -1}
	orchestrator := newTestOrchestrator(t, newMockCache(), backend)

	chunks := []string{"first chunk", "second chunk", "third chunk"}

	units, err := orchestrator.Generate(
		context.Background(), chunks, networkedVoice(), 1.0, "", nil,
	)
	require.NoError(t, err)
	require.Len(t, units, len(chunks))

	for i, unit := range units {
		assert.Equal(t, i, unit.Index)
		assert.Equal(t, chunks[i], unit.Text)
		assert.Equal(t, []byte("audio:"+chunks[i]), unit.Audio)
		assert.Equal(t, "audio/wav", unit.ContentType)
		assert.False(t, unit.IsRealtime())
	}

	// Strictly sequential: backend saw chunks in queue order.
	assert.Equal(t, chunks, backend.calls)
}

func TestGenerateNetworkedFailFast(t *testing.T) {
	t.Parallel()

	backend := &mockNetworked{failAtCall: 1}
	orchestrator := newTestOrchestrator(t, newMockCache(), backend)

	units, err := orchestrator.Generate(
		context.Background(),
		[]string{"chunk a", "chunk b", "chunk c"},
		networkedVoice(), 1.0, "", nil,
	)
	require.Error(t, err)
	require.ErrorIs(t, err, errSynthBoom)
	assert.Contains(t, err.Error(), "chunk 1")
	assert.Nil(t, units)

	// The failed chunk aborted the batch before chunk c was attempted.
	assert.Len(t, backend.calls, 2)
}

func TestGenerateNetworkedHealthCheckFailure(t *testing.T) {
	t.Parallel()

	backend := &mockNetworked{failAtCall: -1, healthErr: errSynthBoom}
	orchestrator := newTestOrchestrator(t, newMockCache(), backend)

	_, err := orchestrator.Generate(
		context.Background(), []string{"chunk a"}, networkedVoice(), 1.0, "", nil,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
	assert.Empty(t, backend.calls)
}

func TestGenerateNetworkedCacheHitSkipsBackend(t *testing.T) {
	t.Parallel()

	backend := &mockNetworked{failAtCall: -1}
	cache := newMockCache()
	orchestrator := newTestOrchestrator(t, cache, backend)

	chunks := []string{"repeat me"}

	first, err := orchestrator.Generate(
		context.Background(), chunks, networkedVoice(), 1.0, "", nil,
	)
	require.NoError(t, err)
	require.Len(t, backend.calls, 1)

	second, err := orchestrator.Generate(
		context.Background(), chunks, networkedVoice(), 1.0, "", nil,
	)
	require.NoError(t, err)

	// No second synthesis call; same bytes served from cache.
	assert.Len(t, backend.calls, 1)
	assert.Equal(t, first[0].Audio, second[0].Audio)
}

func TestGenerateNetworkedCacheHitWithinSpeedTolerance(t *testing.T) {
	t.Parallel()

	backend := &mockNetworked{failAtCall: -1}
	orchestrator := newTestOrchestrator(t, newMockCache(), backend)

	chunks := []string{"tolerant text"}

	_, err := orchestrator.Generate(
		context.Background(), chunks, networkedVoice(), 1.0, "", nil,
	)
	require.NoError(t, err)

	_, err = orchestrator.Generate(
		context.Background(), chunks, networkedVoice(), 1.04, "", nil,
	)
	require.NoError(t, err)

	// 1.04 rounds to the same key as 1.00, so the cache absorbed the
	// second batch.
	assert.Len(t, backend.calls, 1)
}

func TestGenerateRealtimeUnitsAreStructured(t *testing.T) {
	t.Parallel()

	orchestrator := newTestOrchestrator(t, newMockCache(), &mockNetworked{failAtCall: -1})

	chunks := []string{"alpha chunk", "beta chunk", "gamma chunk", "delta chunk"}

	units, err := orchestrator.Generate(
		context.Background(), chunks, realtimeVoice(), 1.5, "", nil,
	)
	require.NoError(t, err)
	require.Len(t, units, len(chunks))

	for i, unit := range units {
		assert.Equal(t, i, unit.Index)
		assert.Equal(t, chunks[i], unit.Text)
		assert.Equal(t, "en-us", unit.VoiceID)
		assert.InDelta(t, 1.5, unit.Speed, 0.0001)
		assert.True(t, unit.IsRealtime())
		assert.Empty(t, unit.Audio)
	}
}

func TestGenerateProgressMonotonic(t *testing.T) {
	t.Parallel()

	orchestrator := newTestOrchestrator(t, newMockCache(), &mockNetworked{failAtCall: -1})

	chunks := []string{"one", "two", "three", "four", "five"}

	var (
		mu      sync.Mutex
		reports []int
	)

	_, err := orchestrator.Generate(
		context.Background(), chunks, realtimeVoice(), 1.0, "",
		func(completed, total int) {
			mu.Lock()
			defer mu.Unlock()

			assert.Equal(t, len(chunks), total)
			reports = append(reports, completed)
		},
	)
	require.NoError(t, err)

	require.NotEmpty(t, reports)
	assert.Equal(t, 0, reports[0])
	assert.Equal(t, len(chunks), reports[len(reports)-1])

	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i], reports[i-1])
	}
}

func TestGenerateRejectsConcurrentBatch(t *testing.T) {
	t.Parallel()

	orchestrator := newTestOrchestrator(t, newMockCache(), &mockNetworked{failAtCall: -1})

	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = orchestrator.Generate(
			context.Background(), []string{"slow chunk"}, realtimeVoice(), 1.0, "",
			func(completed, _ int) {
				if completed == 0 {
					close(started)
					<-release
				}
			},
		)
	}()

	<-started

	assert.True(t, orchestrator.Generating())

	_, err := orchestrator.Generate(
		context.Background(), []string{"other chunk"}, realtimeVoice(), 1.0, "", nil,
	)
	require.ErrorIs(t, err, generate.ErrGenerationInProgress)

	close(release)
}

func TestGenerateEmptyBatch(t *testing.T) {
	t.Parallel()

	orchestrator := newTestOrchestrator(t, newMockCache(), &mockNetworked{failAtCall: -1})

	_, err := orchestrator.Generate(
		context.Background(), nil, realtimeVoice(), 1.0, "", nil,
	)
	require.ErrorIs(t, err, generate.ErrNoChunks)
}

func TestGenerateCacheWriteFailureIsAbsorbed(t *testing.T) {
	t.Parallel()

	backend := &mockNetworked{failAtCall: -1}
	cache := newMockCache()
	cache.putShouldFail = true
	orchestrator := newTestOrchestrator(t, cache, backend)

	units, err := orchestrator.Generate(
		context.Background(), []string{"uncacheable"}, networkedVoice(), 1.0, "", nil,
	)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, []byte("audio:uncacheable"), units[0].Audio)
	assert.Equal(t, 1, cache.putCalls)
}

func TestGenerateMissingNetworkedCapability(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "generate-nocap.log")
	require.NoError(t, err)

	t.Cleanup(func() { testLogger.Close() })

	orchestrator := generate.New(
		newMockCache(), cachekey.New(testLogger), &mockRealtime{}, nil, testLogger,
	)

	_, err = orchestrator.Generate(
		context.Background(), []string{"chunk"}, networkedVoice(), 1.0, "", nil,
	)
	require.ErrorIs(t, err, core.ErrUnsupportedCapability)
}
