package manager

import (
	"context"
	"time"
)

// Shutdown stops the manager. It is idempotent and safe to call from any
// state: the first call moves to ShuttingDown, waits up to DrainTimeout (or
// ctx) for in-flight requests, shuts the backend down and ends in Stopped.
// Concurrent callers wait for that first call. Cleanup errors are logged and
// suppressed, so Shutdown always returns nil.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() { m.shutdown(ctx) })
	return nil
}

func (m *Manager) shutdown(ctx context.Context) {
	var prev State
	for {
		prev = m.State()
		if prev == StateStopped || prev == StateShuttingDown {
			break
		}
		if m.transition(prev, StateShuttingDown) {
			break
		}
	}
	m.publish(EventShutdownBegin, map[string]any{"from": prev.String()})

	m.mu.Lock()
	cancel, startDone, b := m.startCancel, m.startDone, m.b
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	m.drain(ctx)

	if startDone != nil {
		select {
		case <-startDone:
		case <-ctx.Done():
			m.log.Warn().Msg("backend start still running at shutdown")
		}
	}

	if b != nil {
		if err := b.Shutdown(ctx); err != nil {
			m.log.Warn().Err(err).Str("kind", string(b.Kind())).Msg("backend shutdown failed")
			m.mu.Lock()
			m.lastErr = err.Error()
			m.mu.Unlock()
		}
	}

	m.state.Store(int32(StateStopped))
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(StateStopped)
	}
	m.log.Info().Str("state", StateStopped.String()).Msg("lifecycle transition")
	m.publish(EventStopped, nil)
}

// drain waits for the in-flight count to reach zero, DrainTimeout or ctx,
// whichever comes first.
func (m *Manager) drain(ctx context.Context) {
	if m.inflight.Load() == 0 {
		return
	}
	deadline := time.NewTimer(m.cfg.DrainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		n := m.inflight.Load()
		if n == 0 {
			return
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			m.log.Warn().Int64("inflight", n).Dur("timeout", m.cfg.DrainTimeout).Msg("drain timed out")
			m.publish(EventDrainTimeout, map[string]any{"inflight": n})
			return
		case <-ctx.Done():
			m.log.Warn().Int64("inflight", n).Msg("drain interrupted")
			m.publish(EventDrainTimeout, map[string]any{"inflight": n, "cause": ctx.Err().Error()})
			return
		}
	}
}
