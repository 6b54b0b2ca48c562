// Package remoteaudio persists generated audio units to a remote object
// store under a deterministic per-document path scheme, and loads them back
// into playable form.
package remoteaudio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/narrator/internal/core"
)

// Path layout: {ownerID}/audio/{documentID}/chunk-0000.{ext}. The zero-padded
// index keeps lexical listing order equal to chunk order.
const (
	chunkPathFormat = "%s/audio/%s/chunk-%04d.%s"
	prefixFormat    = "%s/audio/%s/"

	realtimeExtension = "json"
	defaultExtension  = "wav"
)

// Log format strings.
const (
	logFmtUnitSaveFailed = "Failed to persist chunk %d for document %s, skipping: %v"
	logFmtRecordSaved    = "Persisted %d/%d chunks for document %s"
	logFmtDeleted        = "Removed %d remote audio objects for document %s"
)

// realtimePayload is the stored form of a realtime unit: no waveform, just
// what is needed to synthesize it again at playback time.
type realtimePayload struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Speaker string  `json:"speaker,omitempty"`
}

// Persistence saves and restores generated audio through a core.ObjectStore.
type Persistence struct {
	store core.ObjectStore
	log   *logger.Logger
	now   func() time.Time
}

// New creates a Persistence layer over the given object store.
func New(store core.ObjectStore, log *logger.Logger) *Persistence {
	return &Persistence{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Save persists each unit independently. A unit that fails to upload is
// logged and skipped; the returned record lists exactly the paths that
// succeeded, in unit order. Save fails outright only when nothing persisted.
// Callers should check Partial() on the record before trusting it as a
// complete rendition of the document.
func (p *Persistence) Save(
	ctx context.Context,
	units []core.AudioUnit,
	settings core.GenerationSettings,
	ownerID, documentID string,
) (core.RemoteAudioRecord, error) {
	if len(units) == 0 {
		return core.RemoteAudioRecord{}, fmt.Errorf("%w: no units to save", core.ErrPersistence)
	}

	paths := make([]string, 0, len(units))

	for index, unit := range units {
		path := chunkPath(ownerID, documentID, index, unitExtension(unit))

		data, contentType, err := encodeUnit(unit)
		if err != nil {
			p.log.Warn(logFmtUnitSaveFailed, index, documentID, err)

			continue
		}

		uploadErr := p.store.Upload(ctx, path, data, contentType)
		if uploadErr != nil {
			p.log.Warn(logFmtUnitSaveFailed, index, documentID, uploadErr)

			continue
		}

		paths = append(paths, path)
	}

	if len(paths) == 0 {
		return core.RemoteAudioRecord{}, fmt.Errorf(
			"%w: all %d uploads failed for document %s", core.ErrPersistence, len(units), documentID,
		)
	}

	p.log.Info(logFmtRecordSaved, len(paths), len(units), documentID)

	return core.RemoteAudioRecord{
		OwnerID:    ownerID,
		DocumentID: documentID,
		Paths:      paths,
		Settings:   settings,
		ChunkCount: len(units),
		SavedAt:    p.now(),
	}, nil
}

// Load fetches every path in the record. Any single failed fetch fails the
// whole load; the caller regenerates rather than playing a queue with silent
// gaps.
func (p *Persistence) Load(ctx context.Context, record core.RemoteAudioRecord) ([]core.AudioUnit, error) {
	units := make([]core.AudioUnit, 0, len(record.Paths))

	for index, path := range record.Paths {
		data, err := p.store.Download(ctx, path)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: chunk %d (%s): %v", core.ErrPersistence, index, path, err,
			)
		}

		unit, decodeErr := decodeUnit(index, path, data, record.Settings)
		if decodeErr != nil {
			return nil, decodeErr
		}

		units = append(units, unit)
	}

	return units, nil
}

// DeleteAll removes every object under the document's audio prefix. Deleting
// a document that has nothing stored is not an error.
func (p *Persistence) DeleteAll(ctx context.Context, ownerID, documentID string) error {
	prefix := fmt.Sprintf(prefixFormat, ownerID, documentID)

	paths, err := p.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("%w: listing %s: %v", core.ErrPersistence, prefix, err)
	}

	if len(paths) == 0 {
		return nil
	}

	removeErr := p.store.Remove(ctx, paths)
	if removeErr != nil {
		return fmt.Errorf("%w: removing under %s: %v", core.ErrPersistence, prefix, removeErr)
	}

	p.log.Info(logFmtDeleted, len(paths), documentID)

	return nil
}

func chunkPath(ownerID, documentID string, index int, extension string) string {
	return fmt.Sprintf(chunkPathFormat, ownerID, documentID, index, extension)
}

// unitExtension picks the stored file extension: realtime units persist as a
// structured payload, encoded units keep an extension matching their content
// type.
func unitExtension(unit core.AudioUnit) string {
	if unit.IsRealtime() {
		return realtimeExtension
	}

	switch {
	case strings.Contains(unit.ContentType, "mpeg"), strings.Contains(unit.ContentType, "mp3"):
		return "mp3"
	case strings.Contains(unit.ContentType, "ogg"):
		return "ogg"
	default:
		return defaultExtension
	}
}

func encodeUnit(unit core.AudioUnit) ([]byte, string, error) {
	if !unit.IsRealtime() {
		return unit.Audio, unit.ContentType, nil
	}

	payload := realtimePayload{
		Text:    unit.Text,
		VoiceID: unit.VoiceID,
		Speed:   unit.Speed,
		Speaker: unit.Speaker,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("encoding realtime payload: %w", err)
	}

	return data, "application/json", nil
}

func decodeUnit(
	index int,
	path string,
	data []byte,
	settings core.GenerationSettings,
) (core.AudioUnit, error) {
	if strings.HasSuffix(path, "."+realtimeExtension) {
		var payload realtimePayload

		err := json.Unmarshal(data, &payload)
		if err != nil {
			return core.AudioUnit{}, fmt.Errorf(
				"%w: chunk %d (%s): %v", core.ErrDecode, index, path, err,
			)
		}

		return core.AudioUnit{
			Index:   index,
			Engine:  core.EngineRealtime,
			Text:    payload.Text,
			VoiceID: payload.VoiceID,
			Speed:   payload.Speed,
			Speaker: payload.Speaker,
		}, nil
	}

	return core.AudioUnit{
		Index:       index,
		Engine:      core.EngineNetworked,
		VoiceID:     settings.VoiceID,
		Speed:       settings.Speed,
		Speaker:     settings.Speaker,
		Audio:       data,
		ContentType: contentTypeForPath(path),
	}, nil
}

func contentTypeForPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(path, ".ogg"):
		return "audio/ogg"
	default:
		return "audio/wav"
	}
}
