// Package worker_test tests the NATS narration worker.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/generate"
	"github.com/book-expert/narrator/internal/text"
	"github.com/book-expert/narrator/internal/worker"
)

var (
	errMockDownload = errors.New("mock download error")
	errMockGenerate = errors.New("mock generate error")
)

// mockTextStore serves source text for narration jobs.
type mockTextStore struct {
	downloadShouldFail bool
	downloadedKey      string
}

func (m *mockTextStore) Download(_ context.Context, key string) ([]byte, error) {
	if m.downloadShouldFail {
		return nil, errMockDownload
	}

	m.downloadedKey = key

	return []byte("Sample text for narration."), nil
}

func (m *mockTextStore) Upload(_ context.Context, _ string, _ []byte, _ string) error {
	return nil
}

func (m *mockTextStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (m *mockTextStore) Remove(_ context.Context, _ []string) error {
	return nil
}

// mockGenerator fabricates one unit per chunk.
type mockGenerator struct {
	generateShouldFail bool
	generatedChunks    []string
	generatedVoice     core.VoiceDescriptor
}

func (m *mockGenerator) Generate(
	_ context.Context,
	chunks []string,
	voice core.VoiceDescriptor,
	speed float64,
	speaker string,
	_ generate.Progress,
) ([]core.AudioUnit, error) {
	if m.generateShouldFail {
		return nil, errMockGenerate
	}

	m.generatedChunks = chunks
	m.generatedVoice = voice

	units := make([]core.AudioUnit, len(chunks))
	for i, chunk := range chunks {
		units[i] = core.AudioUnit{
			Index:       i,
			Engine:      voice.Engine,
			Text:        chunk,
			VoiceID:     voice.ID,
			Speed:       speed,
			Speaker:     speaker,
			Audio:       []byte("sample audio"),
			ContentType: "audio/wav",
		}
	}

	return units, nil
}

// mockPersister records the save and returns a complete record.
type mockPersister struct {
	savedUnits    []core.AudioUnit
	savedOwner    string
	savedDocument string
}

func (m *mockPersister) Save(
	_ context.Context,
	units []core.AudioUnit,
	settings core.GenerationSettings,
	ownerID, documentID string,
) (core.RemoteAudioRecord, error) {
	m.savedUnits = units
	m.savedOwner = ownerID
	m.savedDocument = documentID

	paths := make([]string, len(units))
	for i := range units {
		paths[i] = "saved-path"
	}

	return core.RemoteAudioRecord{
		OwnerID:    ownerID,
		DocumentID: documentID,
		Paths:      paths,
		Settings:   settings,
		ChunkCount: len(units),
		SavedAt:    time.Now(),
	}, nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)
	t.Cleanup(server.Shutdown)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(natsConnection.Close)

	return natsConnection
}

func setupTest(t *testing.T) (
	*worker.NatsWorker,
	*mockTextStore,
	*mockGenerator,
	*mockPersister,
	*nats.Conn,
) {
	t.Helper()

	mockStore := &mockTextStore{downloadShouldFail: false, downloadedKey: ""}
	generator := &mockGenerator{}
	persister := &mockPersister{}

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { testLogger.Close() })

	workerInstance := worker.NewNatsWorker(
		natsConnection, "narration.requested", mockStore,
		text.NewChunker(), generator, persister, testLogger,
	)

	return workerInstance, mockStore, generator, persister, natsConnection
}

func testRequest() *worker.NarrationRequestedEvent {
	return &worker.NarrationRequestedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		TextKey:    "test-text-key",
		OwnerID:    "owner-1",
		DocumentID: "doc-1",
		Engine:     string(core.EngineNetworked),
		VoiceID:    "en-voice-1",
		Speaker:    "",
		Speed:      1.0,
		ChunkSize:  500,
	}
}

func runWorker(t *testing.T, workerInstance *worker.NatsWorker) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()

		shutdownErr := <-errChan
		assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
	})
}

func TestMessageHandler_Success(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, generator, persister, natsConnection := setupTest(t)
	runWorker(t, workerInstance)

	testEvent := testRequest()
	eventData, err := json.Marshal(testEvent)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request("narration.requested", eventData, 5*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var replyEvent worker.NarrationSavedEvent

	err = json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	assert.Equal(t, "test-text-key", mockStore.downloadedKey)
	assert.NotEmpty(t, generator.generatedChunks)
	assert.Equal(t, core.EngineNetworked, generator.generatedVoice.Engine)
	assert.Equal(t, "owner-1", persister.savedOwner)
	assert.Equal(t, "doc-1", persister.savedDocument)
	assert.Len(t, persister.savedUnits, len(generator.generatedChunks))

	assert.Equal(t, "doc-1", replyEvent.DocumentID)
	assert.Equal(t, len(generator.generatedChunks), replyEvent.ChunkCount)
	assert.False(t, replyEvent.Partial)
	assert.Equal(t, testEvent.Header.WorkflowID, replyEvent.Header.WorkflowID)
}

func TestMessageHandler_InvalidRequestGetsNoReply(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, _, _, natsConnection := setupTest(t)
	runWorker(t, workerInstance)

	badEvent := testRequest()
	badEvent.Speed = 3.5

	eventData, err := json.Marshal(badEvent)
	require.NoError(t, err)

	_, err = natsConnection.Request("narration.requested", eventData, 500*time.Millisecond)
	require.Error(t, err, "invalid requests are dropped without a reply")
	assert.Empty(t, mockStore.downloadedKey, "no work should start for an invalid request")
}

func TestMessageHandler_GenerateFailureGetsNoReply(t *testing.T) {
	t.Parallel()

	workerInstance, _, generator, persister, natsConnection := setupTest(t)
	generator.generateShouldFail = true
	runWorker(t, workerInstance)

	eventData, err := json.Marshal(testRequest())
	require.NoError(t, err)

	_, err = natsConnection.Request("narration.requested", eventData, 500*time.Millisecond)
	require.Error(t, err)
	assert.Empty(t, persister.savedUnits, "nothing should persist when generation fails")
}

func TestValidateRequestRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*worker.NarrationRequestedEvent)
	}{
		{
			name:   "empty text key",
			mutate: func(e *worker.NarrationRequestedEvent) { e.TextKey = "" },
		},
		{
			name:   "empty owner",
			mutate: func(e *worker.NarrationRequestedEvent) { e.OwnerID = "" },
		},
		{
			name:   "empty document",
			mutate: func(e *worker.NarrationRequestedEvent) { e.DocumentID = "" },
		},
		{
			name:   "empty voice",
			mutate: func(e *worker.NarrationRequestedEvent) { e.VoiceID = "" },
		},
		{
			name:   "unknown engine",
			mutate: func(e *worker.NarrationRequestedEvent) { e.Engine = "holographic" },
		},
		{
			name:   "speed too slow",
			mutate: func(e *worker.NarrationRequestedEvent) { e.Speed = 0.1 },
		},
		{
			name:   "speed too fast",
			mutate: func(e *worker.NarrationRequestedEvent) { e.Speed = 2.5 },
		},
		{
			name:   "negative chunk size",
			mutate: func(e *worker.NarrationRequestedEvent) { e.ChunkSize = -1 },
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			workerInstance, mockStore, _, _, natsConnection := setupTest(t)
			runWorker(t, workerInstance)

			event := testRequest()
			testCase.mutate(event)

			eventData, err := json.Marshal(event)
			require.NoError(t, err)

			_, err = natsConnection.Request("narration.requested", eventData, 300*time.Millisecond)
			require.Error(t, err)
			assert.Empty(t, mockStore.downloadedKey)
		})
	}
}
