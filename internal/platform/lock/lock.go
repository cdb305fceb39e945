// Package lock provides short-lived mutual exclusion keyed by string, used to
// reject concurrent requests from the same user.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker acquires a key for at most ttl. ok is false when the key is already
// held. release is a no-op after the ttl has lapsed and another holder took
// the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type memoryEntry struct {
	token   uint64
	expires time.Time
}

// Memory is a process-local Locker for development and tests.
type Memory struct {
	mu   sync.Mutex
	held map[string]memoryEntry
	next uint64
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.held[key]; ok && now.Before(e.expires) {
		return func() {}, false, nil
	}

	m.next++
	token := m.next
	m.held[key] = memoryEntry{token: token, expires: now.Add(ttl)}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if e, ok := m.held[key]; ok && e.token == token {
			delete(m.held, key)
		}
	}, true, nil
}
