package cache

import (
	"context"
	"log"
)

// Tiered reads a collection from the remote source first and falls back to the
// cached copy when the remote read fails. Every successful remote read is
// written through to the cache.
type Tiered[T any] struct {
	cache  Source
	logger *log.Logger
}

func NewTiered[T any](cache Source, logger *log.Logger) Tiered[T] {
	if logger == nil {
		logger = log.Default()
	}
	return Tiered[T]{cache: cache, logger: logger}
}

// Read returns the remote records, or the last cached records for key when
// remote fails. The remote error is returned only when nothing was ever cached.
func (t Tiered[T]) Read(ctx context.Context, key string, remote func(context.Context) ([]T, error)) ([]T, error) {
	records, err := remote(ctx)
	if err == nil {
		if records == nil {
			records = []T{}
		}
		if cerr := Save(ctx, t.cache, key, records); cerr != nil {
			t.logger.Printf("[warn] cache write %s: %v", key, cerr)
		}
		return records, nil
	}

	cached, ok, cerr := Load[T](ctx, t.cache, key)
	if cerr != nil {
		t.logger.Printf("[warn] cache read %s: %v", key, cerr)
		return nil, err
	}
	if !ok {
		return nil, err
	}
	t.logger.Printf("[warn] remote read %s failed, serving %d cached records: %v", key, len(cached), err)
	return cached, nil
}
