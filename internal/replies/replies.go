// Package replies correlates outbound request ids with their eventual
// replies, with per-waiter timeouts and safe handling of late or
// unsolicited completions.
package replies

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimedOut is returned by Pending.Get when no reply arrives within the
// configured timeout.
var ErrTimedOut = errors.New("replies: timed out")

// ErrCanceled is returned by Pending.Get when the waiter is dropped via
// Purge or the map is closed before a reply arrives.
var ErrCanceled = errors.New("replies: canceled")

// Pending is a handle to a single outstanding request, returned by
// Register. Exactly one of Get's return values is meaningful.
type Pending[R any] struct {
	timeout time.Duration
	result  chan R
	done    chan struct{}
	once    sync.Once
}

func newPending[R any](timeout time.Duration) *Pending[R] {
	return &Pending[R]{
		timeout: timeout,
		result:  make(chan R, 1),
		done:    make(chan struct{}),
	}
}

// Get blocks until a reply arrives, the timeout elapses, the waiter is
// canceled, or ctx is done, whichever happens first.
func (p *Pending[R]) Get(ctx context.Context) (R, error) {
	var zero R
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case v := <-p.result:
		return v, nil
	case <-p.done:
		return zero, ErrCanceled
	case <-timer.C:
		return zero, ErrTimedOut
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *Pending[R]) complete(v R) bool {
	select {
	case p.result <- v:
		return true
	default:
		return false
	}
}

func (p *Pending[R]) cancel() {
	p.once.Do(func() { close(p.done) })
}

// Map is a concurrent map from request id to a one-shot reply slot. It is
// the Go analogue of the original Replies<I, R> type: register a waiter
// before sending the request, then complete it when the matching frame
// arrives. Completing or canceling an id nobody registered is a no-op.
type Map[I comparable, R any] struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[I]*Pending[R]
}

// NewMap creates a Map whose waiters expire after timeout if uncompleted.
func NewMap[I comparable, R any](timeout time.Duration) *Map[I, R] {
	return &Map[I, R]{
		timeout: timeout,
		pending: make(map[I]*Pending[R]),
	}
}

// Register creates and stores a waiter for id, replacing any existing
// waiter for the same id (which is canceled).
func (m *Map[I, R]) Register(id I) *Pending[R] {
	p := newPending[R](m.timeout)

	m.mu.Lock()
	if old, ok := m.pending[id]; ok {
		old.cancel()
	}
	m.pending[id] = p
	m.mu.Unlock()

	return p
}

// Complete resolves the waiter registered for id, if any. It returns
// false if id has no outstanding waiter, which the caller should treat as
// a harmless no-op rather than an error.
func (m *Map[I, R]) Complete(id I, v R) bool {
	m.mu.Lock()
	p, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	return p.complete(v)
}

// Purge cancels and drops every outstanding waiter. It is called when the
// connection engine's loop exits, so that Get on every still-pending
// waiter unblocks with ErrCanceled instead of hanging until its timeout.
func (m *Map[I, R]) Purge() {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[I]*Pending[R])
	m.mu.Unlock()

	for _, p := range pending {
		p.cancel()
	}
}

// Len reports the number of outstanding waiters, for diagnostics.
func (m *Map[I, R]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
