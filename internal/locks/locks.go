// Package locks provides per-feed mutual exclusion so a feed's deletion and
// an in-flight ingestion cycle never interleave. Granularity is per feed id;
// unrelated feeds proceed concurrently.
package locks

import (
	"context"
	"sync"
)

type feedLock struct {
	refs int
	sem  chan struct{}
}

// Manager hands out per-feed locks, created on first use and removed once
// the last holder or waiter is gone, so the map never grows unbounded.
type Manager struct {
	mu    sync.Mutex
	feeds map[int64]*feedLock
}

func NewManager() *Manager {
	return &Manager{feeds: make(map[int64]*feedLock)}
}

// TryAcquire attempts the feed's lock without blocking. Ingestion uses this:
// a feed that is busy (or mid-deletion) is skipped, not waited on.
func (m *Manager) TryAcquire(feedID int64) (func(), bool) {
	fl := m.retain(feedID)

	select {
	case fl.sem <- struct{}{}:
		return m.releaseFunc(feedID, fl), true
	default:
		m.release(feedID, fl)
		return nil, false
	}
}

// Acquire blocks until the feed's lock is free or ctx ends. Deletion uses
// this to wait out an in-flight ingestion cycle.
func (m *Manager) Acquire(ctx context.Context, feedID int64) (func(), error) {
	fl := m.retain(feedID)

	select {
	case fl.sem <- struct{}{}:
		return m.releaseFunc(feedID, fl), nil
	case <-ctx.Done():
		m.release(feedID, fl)
		return nil, ctx.Err()
	}
}

// Locked reports whether the feed's lock is currently held.
func (m *Manager) Locked(feedID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	fl, ok := m.feeds[feedID]
	return ok && len(fl.sem) > 0
}

func (m *Manager) retain(feedID int64) *feedLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	fl, ok := m.feeds[feedID]
	if !ok {
		fl = &feedLock{sem: make(chan struct{}, 1)}
		m.feeds[feedID] = fl
	}
	fl.refs++
	return fl
}

func (m *Manager) release(feedID int64, fl *feedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fl.refs--
	if fl.refs == 0 {
		delete(m.feeds, feedID)
	}
}

func (m *Manager) releaseFunc(feedID int64, fl *feedLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-fl.sem
			m.release(feedID, fl)
		})
	}
}
