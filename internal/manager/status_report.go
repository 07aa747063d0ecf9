package manager

import (
	"time"

	"lightserve/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := types.StatusResponse{
		State:          m.State().String(),
		Model:          m.desc.Model,
		Inflight:       m.inflight.Load(),
		MaxInflight:    cap(m.slots),
		UptimeSeconds:  int64(now.Sub(m.created).Seconds()),
		ServerTimeUnix: now.Unix(),
		LastError:      m.lastErr,
	}
	if m.b != nil {
		resp.Backend = string(m.b.Kind())
	}
	if !m.startedAt.IsZero() {
		resp.StartedAtUnix = m.startedAt.Unix()
	}
	if !m.readyAt.IsZero() {
		resp.ReadyAtUnix = m.readyAt.Unix()
	}
	return resp
}
