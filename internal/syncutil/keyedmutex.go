// Package syncutil provides keyed locking for serializing work per payment
// reference.
package syncutil

import (
	"context"
	"hash/fnv"
	"sync"
)

const shardCount = 256

// KeyedMutex serializes callers that share a key. It keeps a fixed pool of
// channel-based locks, so memory stays bounded no matter how many distinct
// keys are seen; keys that hash to the same shard occasionally contend with
// each other, which is harmless here.
//
// The channel implementation lets a waiter give up when its context is
// cancelled instead of queueing forever behind a slow holder.
type KeyedMutex struct {
	shards [shardCount]chan struct{}
	once   sync.Once
}

func (m *KeyedMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i] = make(chan struct{}, 1)
			m.shards[i] <- struct{}{} // start unlocked
		}
	})
}

// LockContext acquires the lock for key, or gives up when ctx is cancelled.
// On success it returns an unlock function the caller must invoke when done.
func (m *KeyedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	m.init()
	shard := m.shards[shardFor(key)]

	select {
	case <-shard:
		return func() { shard <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
