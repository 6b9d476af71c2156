// Package rtdb is the compare-and-set capable key-value layer the rest of
// the pipeline is built on. It stands in for "an eventually-consistent
// realtime database that offers optimistic transactions on individual
// keys" — in a production deployment this could be backed by Firebase
// RTDB's REST API instead, behind the same Store interface, without any
// caller needing to change.
//
// The concrete implementation here uses Redis WATCH/MULTI/EXEC (exposed by
// go-redis as Client.Watch), adapted from the teacher's queue-backend
// interface abstraction (internal/storage-backends) into a keyed-blob CAS
// abstraction, since this system's claim protocol is per-key rather than
// per-list.
package rtdb

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// ErrAborted is returned by CompareAndSwap when the caller's fn declines to
// write (write=false); callers typically treat this as "nothing to do",
// not an error, but it is exposed so a caller can distinguish it from a
// genuine mutation.
var ErrAborted = errors.New("rtdb: compare-and-swap aborted by caller")

// MutateFunc inspects the current value (and whether the key exists) and
// decides the next value. Returning write=false aborts the transaction
// with no effect. Returning a non-nil error aborts and propagates the error.
type MutateFunc func(current string, exists bool) (next string, write bool, err error)

// Store is the CAS-capable key-value abstraction used throughout the
// pipeline: queue items, job records, and stage logs are all values behind
// string keys in this store.
type Store interface {
	// Get returns the value at key, or exists=false if absent.
	Get(ctx context.Context, key string) (value string, exists bool, err error)

	// Set writes key unconditionally. Used for enqueue and RMW writes where
	// the caller already serialized concurrent access another way.
	Set(ctx context.Context, key, value string) error

	// CompareAndSwap performs an optimistic read-modify-write transaction
	// on key: fn observes the current value and decides the next one. If
	// another writer mutates key between the read and the write, the
	// transaction is retried transparently by the backend's optimistic
	// locking, never silently lost.
	CompareAndSwap(ctx context.Context, key string, fn MutateFunc) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ScanPrefix lists every key starting with prefix. Used by claim's
	// scan step.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

// RedisStore implements Store over a go-redis v8 client.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// maxCASRetries bounds the WATCH retry loop below. A losing racer re-reads
// the now-updated key on each retry, so it converges in one or two rounds
// either to its own successful write or to fn observing the winner's value
// and aborting; this cap only guards against pathological contention.
const maxCASRetries = 10

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, fn MutateFunc) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
			current = ""
		} else if err != nil {
			return err
		}

		next, write, err := fn(current, exists)
		if err != nil {
			return err
		}
		if !write {
			return ErrAborted
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		err = s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, ErrAborted) {
			return ErrAborted
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		// Someone else committed between our read and our EXEC; fn will
		// see their value on retry and decide fresh whether to write.
	}
	return err
}

func (s *RedisStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
