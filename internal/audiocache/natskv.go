package audiocache

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/book-expert/narrator/internal/core"
)

// NatsKVStore implements core.DurableStore on a NATS JetStream KeyValue
// bucket. Entry creation times come from the KV revision metadata, which
// gives the creation-time index age eviction needs for free.
type NatsKVStore struct {
	bucket string
	kv     nats.KeyValue
}

// NewNatsKVStore creates the bucket if needed, or binds to it when it already
// exists.
func NewNatsKVStore(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsKVStore, error) {
	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Durable audio cache tier for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create cache bucket '%s': %w", bucketName, err)
		}

		kv, err = jetstreamContext.KeyValue(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing cache bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsKVStore{
		bucket: bucketName,
		kv:     kv,
	}, nil
}

// Get returns the payload for key, or core.ErrNotFound.
func (s *NatsKVStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: key '%s'", core.ErrNotFound, key)
		}

		return nil, fmt.Errorf("failed to get key '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	return entry.Value(), nil
}

// Put stores the payload under key, overwriting any previous revision.
func (s *NatsKVStore) Put(_ context.Context, key string, data []byte) error {
	_, err := s.kv.Put(key, data)
	if err != nil {
		return fmt.Errorf("failed to put key '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}

// Entries lists every record with its creation time and payload size.
func (s *NatsKVStore) Entries(_ context.Context) ([]core.DurableEntry, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list keys in bucket '%s': %w", s.bucket, err)
	}

	entries := make([]core.DurableEntry, 0, len(keys))

	for _, key := range keys {
		entry, getErr := s.kv.Get(key)
		if getErr != nil {
			// Deleted between listing and fetching; skip.
			if errors.Is(getErr, nats.ErrKeyNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to read key '%s' in bucket '%s': %w", key, s.bucket, getErr)
		}

		entries = append(entries, core.DurableEntry{
			Key:       key,
			CreatedAt: entry.Created(),
			SizeBytes: int64(len(entry.Value())),
		})
	}

	return entries, nil
}

// Delete purges the given keys. Missing keys are not an error.
func (s *NatsKVStore) Delete(_ context.Context, keys []string) error {
	for _, key := range keys {
		err := s.kv.Purge(key)
		if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
			return fmt.Errorf("failed to purge key '%s' from bucket '%s': %w", key, s.bucket, err)
		}
	}

	return nil
}

// Clear purges every key in the bucket.
func (s *NatsKVStore) Clear(ctx context.Context) error {
	entries, err := s.Entries(ctx)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.Key)
	}

	return s.Delete(ctx, keys)
}
