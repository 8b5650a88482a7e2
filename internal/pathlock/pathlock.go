// Package pathlock provides an in-process, per-key FIFO mutex used to
// serialize mutations of the same filesystem path. It offers no exclusion
// across processes.
package pathlock

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// WaitObserver is told how long each successful acquisition waited.
type WaitObserver func(wait time.Duration)

// Option configures a Mutex.
type Option func(*Mutex)

// WithWaitObserver reports the queueing delay of every grant.
func WithWaitObserver(o WaitObserver) Option {
	return func(m *Mutex) { m.observe = o }
}

type waiter struct {
	ready chan struct{}
}

// Mutex holds one FIFO queue of waiters per key. The head of a queue is
// the only holder of that key; a key whose queue empties is removed.
type Mutex struct {
	mu      sync.Mutex
	queues  map[string][]*waiter
	observe WaitObserver
}

// New creates an empty Mutex.
func New(opts ...Option) *Mutex {
	m := &Mutex{queues: make(map[string][]*waiter)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key normalizes a path into a lock key.
func Key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Acquire enqueues the caller on key and blocks until it reaches the head
// of the queue or ctx is done. The returned release is idempotent; calling
// it on a waiter that was never granted just removes it from the queue.
func (m *Mutex) Acquire(ctx context.Context, key string) (release func(), err error) {
	key = Key(key)
	start := time.Now()
	w := &waiter{ready: make(chan struct{})}

	m.mu.Lock()
	q := m.queues[key]
	m.queues[key] = append(q, w)
	if len(q) == 0 {
		close(w.ready)
	}
	m.mu.Unlock()

	var once sync.Once
	release = func() { once.Do(func() { m.release(key, w) }) }

	select {
	case <-w.ready:
	case <-ctx.Done():
		release()
		// The hand-off may have raced with cancellation; releasing above
		// passed the lock on in that case.
		return nil, ctx.Err()
	}

	if m.observe != nil {
		m.observe(time.Since(start))
	}
	return release, nil
}

// release removes w from key's queue. If w held the lock the next waiter
// is woken by closing its channel, so the hand-off never runs the next
// holder on the releasing goroutine.
func (m *Mutex) release(key string, w *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[key]
	i := slices.Index(q, w)
	if i < 0 {
		return
	}
	q = slices.Delete(q, i, i+1)
	if len(q) == 0 {
		delete(m.queues, key)
		return
	}
	m.queues[key] = q
	if i == 0 {
		close(q[0].ready)
	}
}

// Len returns the number of holders and waiters queued on key.
func (m *Mutex) Len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[Key(key)])
}

// Keys returns the keys that currently have a holder, sorted.
func (m *Mutex) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.queues))
	for k := range m.queues {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
