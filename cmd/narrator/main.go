// main package for the narrator service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/narrator/internal/audiocache"
	"github.com/book-expert/narrator/internal/cachekey"
	"github.com/book-expert/narrator/internal/config"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/generate"
	"github.com/book-expert/narrator/internal/objectstore"
	"github.com/book-expert/narrator/internal/remoteaudio"
	"github.com/book-expert/narrator/internal/speech"
	"github.com/book-expert/narrator/internal/text"
	"github.com/book-expert/narrator/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "narrator-bootstrap.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return runService(cfg, finalLog)
}

func runService(cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	textStore, err := objectstore.New(jetstreamContext, cfg.NATS.TextObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to open text bucket: %w", err)
	}

	audioStore, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to open audio bucket: %w", err)
	}

	durable, err := audiocache.NewNatsKVStore(jetstreamContext, cfg.NATS.CacheBucket)
	if err != nil {
		return fmt.Errorf("failed to open cache bucket: %w", err)
	}

	cache := audiocache.New(durable, log)
	keys := cachekey.New(log)

	// The realtime capability is host-dependent; the service still runs
	// without it and serves networked engines only.
	realtime := probeRealtime(log)

	networked := speech.NewHTTPSynthesizer(
		cfg.Speech.BaseURL,
		time.Duration(cfg.Speech.TimeoutSeconds)*time.Second,
	)

	orchestrator := generate.New(cache, keys, realtime, networked, log)
	persistence := remoteaudio.New(audioStore, log)

	narrationWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.NarrationSubject,
		textStore,
		text.NewChunker(),
		orchestrator,
		persistence,
		log,
	)

	evictCacheOnStartup(cache, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.System(
		"Narrator initialized. Listening for jobs on subject: %s",
		cfg.NATS.NarrationSubject,
	)

	runErr := narrationWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped: %w", runErr)
	}

	return nil
}

func probeRealtime(log *logger.Logger) core.RealtimeSpeech {
	realtime, err := speech.NewESpeakSpeech(log)
	if err != nil {
		if errors.Is(err, core.ErrUnsupportedCapability) {
			log.Warn("No realtime speech capability on this host: %v", err)

			return nil
		}

		log.Error("Realtime speech probe failed: %v", err)

		return nil
	}

	return realtime
}

func evictCacheOnStartup(cache *audiocache.TieredCache, cfg *config.Config, log *logger.Logger) {
	maxAge := time.Duration(cfg.Generation.CacheMaxAgeHours) * time.Hour

	evicted, err := cache.EvictOlderThan(context.Background(), maxAge)
	if err != nil {
		log.Warn("Startup cache eviction failed: %v", err)

		return
	}

	log.Info("Evicted %d cache entries older than %s", evicted, maxAge)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
