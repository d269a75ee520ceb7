package memengine

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// lockTable hands out one binary semaphore per key. Entries are dropped once nobody holds or waits for them.
type lockTable struct {
	mu      sync.Mutex
	entries map[circulation.LockKey]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[circulation.LockKey]*lockEntry)}
}

// acquireAll takes the keys in order. On failure every key taken so far is released again.
func (lt *lockTable) acquireAll(ctx context.Context, keys []circulation.LockKey) error {
	for i, key := range keys {
		if err := lt.acquire(ctx, key); err != nil {
			lt.releaseAll(keys[:i])
			return err
		}
	}

	return nil
}

func (lt *lockTable) acquire(ctx context.Context, key circulation.LockKey) error {
	lt.mu.Lock()
	entry, ok := lt.entries[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		lt.entries[key] = entry
	}
	entry.refs++
	lt.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		lt.unref(key, entry)
		return ctx.Err()
	}
}

func (lt *lockTable) releaseAll(keys []circulation.LockKey) {
	for i := len(keys) - 1; i >= 0; i-- {
		lt.release(keys[i])
	}
}

func (lt *lockTable) release(key circulation.LockKey) {
	lt.mu.Lock()
	entry, ok := lt.entries[key]
	lt.mu.Unlock()

	if !ok {
		return
	}

	<-entry.sem
	lt.unref(key, entry)
}

func (lt *lockTable) unref(key circulation.LockKey, entry *lockEntry) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(lt.entries, key)
	}
}

// size is the number of live entries, used by tests to detect leaks.
func (lt *lockTable) size() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	return len(lt.entries)
}
