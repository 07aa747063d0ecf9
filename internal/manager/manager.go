package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"lightserve/internal/backend"
	"lightserve/internal/config"
)

// Manager owns the single backend instance of the process. Only the manager
// constructs, starts and shuts the backend down; request handlers borrow it
// through Acquire.
type Manager struct {
	cfg       Config
	log       zerolog.Logger
	publisher EventPublisher

	state    atomic.Int32
	inflight atomic.Int64
	slots    chan struct{} // nil when MaxInflight is unlimited

	mu          sync.Mutex
	b           backend.Backend
	desc        config.Descriptor
	startCancel context.CancelFunc
	startDone   chan struct{}
	startedAt   time.Time
	readyAt     time.Time
	lastErr     string

	created      time.Time
	shutdownOnce sync.Once
}

// New returns a manager in state Uninitialized.
func New(cfg Config) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "manager").Logger(),
		publisher: cfg.Publisher,
		created:   time.Now(),
	}
	if cfg.MaxInflight > 0 {
		m.slots = make(chan struct{}, cfg.MaxInflight)
	}
	m.state.Store(int32(StateUninitialized))
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Ready reports whether requests may be dispatched.
func (m *Manager) Ready() bool { return m.State() == StateReady }

// Descriptor returns the descriptor of the constructed backend.
func (m *Manager) Descriptor() config.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desc
}

// transition moves from -> to atomically. It reports false when the state
// was not from.
func (m *Manager) transition(from, to State) bool {
	if !m.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	m.log.Info().Str("from", from.String()).Str("state", to.String()).Msg("lifecycle transition")
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(to)
	}
	return true
}

func (m *Manager) publish(name string, fields map[string]any) {
	d := m.Descriptor()
	if fields == nil {
		fields = map[string]any{}
	}
	m.publisher.Publish(Event{Name: name, Kind: d.Kind, Model: d.Model, Fields: fields})
}

// Construct builds the backend selected by d.Kind. An unknown kind returns
// the registry error (matching backend.ErrUnknownKind) and the manager stays
// Uninitialized with no backend.
func (m *Manager) Construct(d config.Descriptor) error {
	if m.State() != StateUninitialized {
		return ErrAlreadyConstructed
	}
	m.mu.Lock()
	if m.b != nil {
		m.mu.Unlock()
		return ErrAlreadyConstructed
	}
	m.mu.Unlock()

	opts := m.cfg.BackendOptions
	opts.Logger = m.cfg.Logger
	b, err := m.cfg.Registry.New(d, opts)
	if err != nil {
		m.log.Error().Err(err).Str("kind", d.Kind).Msg("backend construction failed")
		return err
	}

	m.mu.Lock()
	if m.b != nil {
		m.mu.Unlock()
		return ErrAlreadyConstructed
	}
	m.b = b
	m.desc = d
	m.mu.Unlock()
	m.log.Info().Str("kind", string(b.Kind())).Str("model", d.Model).Msg("backend constructed")
	m.publish(EventConstruct, nil)
	return nil
}

// Start moves Uninitialized -> Starting and runs the backend start. On
// success the state becomes Ready. On failure cleanup runs, the state ends in
// Stopped and a *StartupError is returned. Start may block for a long time;
// Shutdown called concurrently cancels it.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	b := m.b
	m.mu.Unlock()
	if b == nil {
		return ErrNotConstructed
	}
	var (
		startCtx context.Context
		cancel   context.CancelFunc
	)
	if m.cfg.StartTimeout > 0 {
		startCtx, cancel = context.WithTimeout(ctx, m.cfg.StartTimeout)
	} else {
		startCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	done := make(chan struct{})
	// Published before the transition so a Shutdown that observes Starting
	// can always cancel and wait for the start.
	m.mu.Lock()
	if m.startDone != nil {
		m.mu.Unlock()
		return &StartupError{Kind: string(b.Kind()), Err: notReadyError{state: m.State()}}
	}
	m.startCancel = cancel
	m.startDone = done
	m.mu.Unlock()
	if !m.transition(StateUninitialized, StateStarting) {
		close(done)
		return &StartupError{Kind: string(b.Kind()), Err: notReadyError{state: m.State()}}
	}
	m.mu.Lock()
	m.startedAt = time.Now()
	m.mu.Unlock()
	m.publish(EventStartBegin, nil)

	err := b.Start(startCtx)
	close(done)

	if err == nil {
		if m.transition(StateStarting, StateReady) {
			m.mu.Lock()
			m.readyAt = time.Now()
			took := m.readyAt.Sub(m.startedAt)
			m.mu.Unlock()
			m.publish(EventReady, map[string]any{"took": took})
			return nil
		}
		// Shutdown won the race; it owns cleanup.
		err = notReadyError{state: m.State()}
	}

	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
	m.log.Error().Err(err).Str("kind", string(b.Kind())).Msg("backend start failed")
	m.publish(EventStartFailed, map[string]any{"error": err.Error()})
	_ = m.Shutdown(context.Background())
	return &StartupError{Kind: string(b.Kind()), Err: err}
}
