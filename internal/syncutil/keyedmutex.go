// Package syncutil holds small locking primitives shared across services.
package syncutil

import (
	"context"
	"hash/fnv"
	"strings"
)

const shardCount = 256

// KeyedMutex serializes work per string key (an address, a tx hash) with a
// fixed pool of channel-backed locks. Memory stays bounded no matter how many
// keys are seen; two keys that hash to the same shard share a lock.
// Keys are case-insensitive.
type KeyedMutex struct {
	shards [shardCount]chan struct{}
}

// NewKeyedMutex returns a KeyedMutex with every shard unlocked.
func NewKeyedMutex() *KeyedMutex {
	m := &KeyedMutex{}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
		m.shards[i] <- struct{}{}
	}
	return m
}

// Lock blocks until the key's shard is free and returns its unlock function.
func (m *KeyedMutex) Lock(key string) func() {
	ch := m.shard(key)
	<-ch
	return func() { ch <- struct{}{} }
}

// LockContext is Lock that gives up when ctx is done.
func (m *KeyedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	ch := m.shard(key)
	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the key without waiting. ok is false when it is held.
func (m *KeyedMutex) TryLock(key string) (unlock func(), ok bool) {
	ch := m.shard(key)
	select {
	case <-ch:
		return func() { ch <- struct{}{} }, true
	default:
		return nil, false
	}
}

func (m *KeyedMutex) shard(key string) chan struct{} {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(key)))
	return m.shards[h.Sum32()%shardCount]
}
