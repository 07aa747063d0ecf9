package manager

import (
	"context"
	"sync"
	"time"

	"lightserve/internal/backend"
)

// Acquire lends the backend for one request. It fails with an error matching
// ErrServiceUnavailable unless the state is Ready, and with one matching
// ErrTooBusy when MaxInflight is set and no slot frees up within MaxWait.
// The returned release func must be called exactly once when the request
// finishes; extra calls are no-ops.
func (m *Manager) Acquire(ctx context.Context) (backend.Backend, func(), error) {
	if s := m.State(); s != StateReady {
		return nil, func() {}, notReadyError{state: s}
	}

	if m.slots != nil {
		// Fast path: respect an already-canceled context
		if err := ctx.Err(); err != nil {
			return nil, func() {}, err
		}
		timer := time.NewTimer(m.cfg.MaxWait)
		defer timer.Stop()
		select {
		case m.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, func() {}, ctx.Err()
		case <-timer.C:
			return nil, func() {}, tooBusyError{limit: cap(m.slots)}
		}
	}

	m.inflight.Add(1)
	var once sync.Once
	release := func() {
		once.Do(func() {
			m.inflight.Add(-1)
			if m.slots != nil {
				<-m.slots
			}
		})
	}
	// Re-check after counting so a concurrent shutdown either sees this
	// request in the in-flight count or this request sees the new state.
	if s := m.State(); s != StateReady {
		release()
		return nil, func() {}, notReadyError{state: s}
	}
	m.mu.Lock()
	b := m.b
	m.mu.Unlock()
	return b, release, nil
}

// Inflight returns the number of admitted requests not yet released.
func (m *Manager) Inflight() int64 { return m.inflight.Load() }
