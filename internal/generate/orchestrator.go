// Package generate orchestrates per-chunk speech synthesis: cache lookups,
// backend calls and write-through caching, with an engine-dependent
// concurrency strategy.
package generate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/narrator/internal/cachekey"
	"github.com/book-expert/narrator/internal/core"
)

// healthCheckTimeout bounds the fail-fast backend probe before a networked
// batch.
const healthCheckTimeout = 10 * time.Second

// Static errors.
var (
	// ErrGenerationInProgress indicates a generation batch is already in
	// flight for this session.
	ErrGenerationInProgress = errors.New("generation already in progress")
	// ErrNoChunks indicates an empty chunk batch.
	ErrNoChunks = errors.New("no chunks to generate")
)

// Log format strings.
const (
	logFmtCacheHit         = "Cache hit for chunk %d (%s)"
	logFmtCacheWriteFailed = "Cache write for chunk %d failed, continuing: %v"
	logFmtBackendHealthy   = "Speech backend is healthy, generating %d chunks"
	logFmtChunkSynthesized = "Synthesized chunk %d (%d chars -> %d bytes)"
)

// Cache is the slice of the tiered cache the orchestrator needs.
type Cache interface {
	Get(ctx context.Context, key string) (core.AudioUnit, bool)
	Put(ctx context.Context, key string, unit core.AudioUnit, textHash string) error
}

// Progress reports batch completion. It is invoked monotonically, including
// once at (0, total) and once at (total, total).
type Progress func(completed, total int)

// Orchestrator turns ordered text chunks into ordered audio units. Realtime
// batches fan out fully; networked batches run strictly sequentially to
// protect the shared remote service. Result order always matches chunk
// order.
type Orchestrator struct {
	cache      Cache
	keys       *cachekey.Generator
	realtime   core.RealtimeSpeech
	networked  core.NetworkedSpeech
	log        *logger.Logger
	inProgress atomic.Bool
}

// New creates an orchestrator. Either capability may be nil when absent on
// the host; generating for the missing engine class then fails with
// core.ErrUnsupportedCapability.
func New(
	cache Cache,
	keys *cachekey.Generator,
	realtime core.RealtimeSpeech,
	networked core.NetworkedSpeech,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		cache:     cache,
		keys:      keys,
		realtime:  realtime,
		networked: networked,
		log:       log,
	}
}

// Generating reports whether a batch is currently in flight.
func (o *Orchestrator) Generating() bool {
	return o.inProgress.Load()
}

// Generate produces one audio unit per chunk, in chunk order. Re-entrant
// calls while a batch is in flight are rejected with
// ErrGenerationInProgress. A networked chunk failure aborts the whole batch;
// the caller retries the full batch rather than playing a queue with silent
// gaps.
func (o *Orchestrator) Generate(
	ctx context.Context,
	chunks []string,
	voice core.VoiceDescriptor,
	speed float64,
	speaker string,
	onProgress Progress,
) ([]core.AudioUnit, error) {
	if !o.inProgress.CompareAndSwap(false, true) {
		return nil, ErrGenerationInProgress
	}
	defer o.inProgress.Store(false)

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	settings := core.GenerationSettings{
		Engine:  voice.Engine,
		VoiceID: voice.ID,
		Speed:   speed,
		Speaker: speaker,
	}

	tracker := newProgressTracker(len(chunks), onProgress)
	tracker.start()

	switch voice.Engine {
	case core.EngineRealtime:
		return o.generateRealtime(ctx, chunks, settings, tracker)
	case core.EngineNetworked:
		return o.generateNetworked(ctx, chunks, settings, tracker)
	default:
		return nil, fmt.Errorf("%w: unknown engine class %q", core.ErrUnsupportedCapability, voice.Engine)
	}
}

// generateRealtime fans out over all chunks at once. Realtime units carry
// text, voice and speed rather than a decoded waveform, so the cache handles
// both engine classes uniformly and actual synthesis is deferred to playback
// time.
func (o *Orchestrator) generateRealtime(
	ctx context.Context,
	chunks []string,
	settings core.GenerationSettings,
	tracker *progressTracker,
) ([]core.AudioUnit, error) {
	if o.realtime == nil {
		return nil, fmt.Errorf("%w: no realtime capability on this host", core.ErrUnsupportedCapability)
	}

	units := make([]core.AudioUnit, len(chunks))

	var waitGroup sync.WaitGroup

	for chunkIndex, chunk := range chunks {
		waitGroup.Add(1)

		go func(index int, chunkText string) {
			defer waitGroup.Done()

			units[index] = o.realtimeUnit(ctx, index, chunkText, settings)
			tracker.complete()
		}(chunkIndex, chunk)
	}

	waitGroup.Wait()

	return units, nil
}

func (o *Orchestrator) realtimeUnit(
	ctx context.Context,
	index int,
	chunkText string,
	settings core.GenerationSettings,
) core.AudioUnit {
	key := o.keys.Key(chunkText, settings)

	if cached, ok := o.cache.Get(ctx, key); ok {
		o.log.Info(logFmtCacheHit, index, key)

		cached.Index = index

		return cached
	}

	unit := core.AudioUnit{
		Index:   index,
		Engine:  core.EngineRealtime,
		Text:    chunkText,
		VoiceID: settings.VoiceID,
		Speed:   settings.Speed,
		Speaker: settings.Speaker,
	}

	putErr := o.cache.Put(ctx, key, unit, o.keys.TextHash(chunkText))
	if putErr != nil {
		o.log.Warn(logFmtCacheWriteFailed, index, putErr)
	}

	return unit
}

// generateNetworked issues one request at a time, in chunk order, waiting
// for each response before the next. The shared remote service sees no burst
// load and per-connection ordering is preserved.
func (o *Orchestrator) generateNetworked(
	ctx context.Context,
	chunks []string,
	settings core.GenerationSettings,
	tracker *progressTracker,
) ([]core.AudioUnit, error) {
	if o.networked == nil {
		return nil, fmt.Errorf("%w: no networked capability configured", core.ErrUnsupportedCapability)
	}

	healthErr := o.checkBackendHealth(ctx)
	if healthErr != nil {
		return nil, healthErr
	}

	o.log.Info(logFmtBackendHealthy, len(chunks))

	units := make([]core.AudioUnit, len(chunks))

	for chunkIndex, chunk := range chunks {
		unit, err := o.networkedUnit(ctx, chunkIndex, chunk, settings)
		if err != nil {
			// Fail fast: a partial batch would play with audible gaps.
			return nil, fmt.Errorf("chunk %d failed: %w", chunkIndex, err)
		}

		units[chunkIndex] = unit
		tracker.complete()
	}

	return units, nil
}

func (o *Orchestrator) networkedUnit(
	ctx context.Context,
	index int,
	chunkText string,
	settings core.GenerationSettings,
) (core.AudioUnit, error) {
	key := o.keys.Key(chunkText, settings)

	if cached, ok := o.cache.Get(ctx, key); ok {
		o.log.Info(logFmtCacheHit, index, key)

		cached.Index = index

		return cached, nil
	}

	audio, contentType, err := o.networked.Synthesize(
		ctx, chunkText, settings.VoiceID, settings.Speed, settings.Speaker,
	)
	if err != nil {
		return core.AudioUnit{}, err
	}

	o.log.Info(logFmtChunkSynthesized, index, len(chunkText), len(audio))

	unit := core.AudioUnit{
		Index:       index,
		Engine:      core.EngineNetworked,
		Text:        chunkText,
		VoiceID:     settings.VoiceID,
		Speed:       settings.Speed,
		Speaker:     settings.Speaker,
		Audio:       audio,
		ContentType: contentType,
	}

	putErr := o.cache.Put(ctx, key, unit, o.keys.TextHash(chunkText))
	if putErr != nil {
		o.log.Warn(logFmtCacheWriteFailed, index, putErr)
	}

	return unit, nil
}

func (o *Orchestrator) checkBackendHealth(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	err := o.networked.Health(healthCtx)
	if err != nil {
		return fmt.Errorf("speech backend health check failed: %w", err)
	}

	return nil
}

// progressTracker serializes progress callbacks so completion counts are
// monotonic even under fan-out generation.
type progressTracker struct {
	mu        sync.Mutex
	completed int
	total     int
	report    Progress
}

func newProgressTracker(total int, report Progress) *progressTracker {
	return &progressTracker{
		total:  total,
		report: report,
	}
}

func (p *progressTracker) start() {
	if p.report != nil {
		p.report(0, p.total)
	}
}

func (p *progressTracker) complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completed++

	if p.report != nil {
		p.report(p.completed, p.total)
	}
}
