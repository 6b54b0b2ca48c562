// Package worker provides a NATS worker that turns narration requests into
// persisted audio.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/generate"
	"github.com/book-expert/narrator/internal/text"
)

// handleMessageTimeout bounds one full narration job: download, chunk,
// generate and persist.
const handleMessageTimeout = 5 * time.Minute

var (
	// ErrTextKeyEmpty indicates that the request names no source text.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrOwnerEmpty indicates that the request names no owner.
	ErrOwnerEmpty = errors.New("owner id cannot be empty")
	// ErrDocumentEmpty indicates that the request names no document.
	ErrDocumentEmpty = errors.New("document id cannot be empty")
	// ErrVoiceEmpty indicates that the voice is empty.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrUnsupportedEngine indicates an engine class this worker does not
	// know.
	ErrUnsupportedEngine = errors.New("unsupported engine class")
	// ErrSpeedRange indicates a speed outside the supported range.
	ErrSpeedRange = errors.New("speed must be between 0.5 and 2.0")
	// ErrChunkSizeNegative indicates a negative chunk size target.
	ErrChunkSizeNegative = errors.New("chunk size must be non-negative")
	// ErrEmptyDocument indicates the source text chunked to nothing.
	ErrEmptyDocument = errors.New("document contains no narratable text")
)

// NarrationRequestedEvent asks the worker to narrate a stored text document.
type NarrationRequestedEvent struct {
	Header     events.EventHeader `json:"header"`
	TextKey    string             `json:"text_key"`
	OwnerID    string             `json:"owner_id"`
	DocumentID string             `json:"document_id"`
	Engine     string             `json:"engine"`
	VoiceID    string             `json:"voice_id"`
	Speaker    string             `json:"speaker,omitempty"`
	Speed      float64            `json:"speed"`
	ChunkSize  int                `json:"chunk_size,omitempty"`
}

// NarrationSavedEvent reports where the narration landed. Partial means some
// chunks failed to persist and the document should be regenerated before the
// record is trusted as complete.
type NarrationSavedEvent struct {
	Header     events.EventHeader `json:"header"`
	DocumentID string             `json:"document_id"`
	Paths      []string           `json:"paths"`
	ChunkCount int                `json:"chunk_count"`
	Partial    bool               `json:"partial"`
}

// Generator produces ordered audio units for ordered chunks.
type Generator interface {
	Generate(
		ctx context.Context,
		chunks []string,
		voice core.VoiceDescriptor,
		speed float64,
		speaker string,
		onProgress generate.Progress,
	) ([]core.AudioUnit, error)
}

// Persister saves generated units to the remote audio store.
type Persister interface {
	Save(
		ctx context.Context,
		units []core.AudioUnit,
		settings core.GenerationSettings,
		ownerID, documentID string,
	) (core.RemoteAudioRecord, error)
}

// NatsWorker listens for narration jobs on a NATS subject and processes
// them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	textStore      core.ObjectStore
	chunker        *text.Chunker
	generator      Generator
	persister      Persister
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	textStore core.ObjectStore,
	chunker *text.Chunker,
	generator Generator,
	persister Persister,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		textStore:      textStore,
		chunker:        chunker,
		generator:      generator,
		persister:      persister,
		log:            log,
	}
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	record, processErr := w.processNarrationJob(ctx, event)
	if processErr != nil {
		w.log.Error(
			"Failed to narrate document %s for workflow %s: %v",
			event.DocumentID, event.Header.WorkflowID, processErr,
		)

		return
	}

	replyEvent := &NarrationSavedEvent{
		Header:     event.Header,
		DocumentID: record.DocumentID,
		Paths:      record.Paths,
		ChunkCount: record.ChunkCount,
		Partial:    record.Partial(),
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error(
			"Failed to publish reply event for workflow %s: %v",
			event.Header.WorkflowID, err,
		)
	}
}

// processNarrationJob downloads the source text, chunks it, generates audio
// and persists the result.
func (w *NatsWorker) processNarrationJob(
	ctx context.Context,
	event *NarrationRequestedEvent,
) (core.RemoteAudioRecord, error) {
	textData, err := w.textStore.Download(ctx, event.TextKey)
	if err != nil {
		return core.RemoteAudioRecord{}, fmt.Errorf(
			"failed to download text data for key '%s': %w", event.TextKey, err,
		)
	}

	engine := core.EngineClass(event.Engine)

	chunks := w.chunker.Chunk(string(textData), event.ChunkSize, engine)
	if len(chunks) == 0 {
		return core.RemoteAudioRecord{}, ErrEmptyDocument
	}

	voice := core.VoiceDescriptor{
		Engine:   engine,
		ID:       event.VoiceID,
		Language: "",
		Speakers: nil,
	}

	units, err := w.generator.Generate(ctx, chunks, voice, event.Speed, event.Speaker, nil)
	if err != nil {
		return core.RemoteAudioRecord{}, fmt.Errorf("failed to generate audio: %w", err)
	}

	settings := core.GenerationSettings{
		Engine:    engine,
		VoiceID:   event.VoiceID,
		Speed:     event.Speed,
		Speaker:   event.Speaker,
		ChunkSize: event.ChunkSize,
	}

	record, err := w.persister.Save(ctx, units, settings, event.OwnerID, event.DocumentID)
	if err != nil {
		return core.RemoteAudioRecord{}, fmt.Errorf("failed to persist narration: %w", err)
	}

	return record, nil
}

// publishReplyEvent marshals and responds with the NarrationSavedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *NarrationSavedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*NarrationRequestedEvent, error) {
	var event NarrationRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	validationErr := validateRequest(&event)
	if validationErr != nil {
		return nil, validationErr
	}

	return &event, nil
}

// validateRequest ensures the request carries valid and safe values before
// any work starts.
func validateRequest(event *NarrationRequestedEvent) error {
	if event.TextKey == "" {
		return ErrTextKeyEmpty
	}

	if event.OwnerID == "" {
		return ErrOwnerEmpty
	}

	if event.DocumentID == "" {
		return ErrDocumentEmpty
	}

	if event.VoiceID == "" {
		return ErrVoiceEmpty
	}

	engine := core.EngineClass(event.Engine)
	if engine != core.EngineRealtime && engine != core.EngineNetworked {
		return fmt.Errorf("%w: '%s'", ErrUnsupportedEngine, event.Engine)
	}

	if event.Speed < core.MinSpeed || event.Speed > core.MaxSpeed {
		return fmt.Errorf("%w: got %f", ErrSpeedRange, event.Speed)
	}

	if event.ChunkSize < 0 {
		return fmt.Errorf("%w: got %d", ErrChunkSizeNegative, event.ChunkSize)
	}

	return nil
}
