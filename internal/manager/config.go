package manager

import (
	"time"

	"github.com/rs/zerolog"

	"lightserve/internal/backend"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultDrainTimeout = 30 * time.Second
	defaultMaxWait      = 30 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// Registry resolves backend kinds; nil selects backend.DefaultRegistry.
	Registry backend.Registry
	// BackendOptions is passed to the backend factory with Logger set.
	BackendOptions backend.Options
	Logger         zerolog.Logger
	Publisher      EventPublisher

	// StartTimeout bounds backend start; zero means unbounded.
	StartTimeout time.Duration
	// DrainTimeout bounds the wait for in-flight requests during shutdown.
	DrainTimeout time.Duration
	// MaxInflight limits concurrently admitted requests; zero means unlimited.
	MaxInflight int
	// MaxWait bounds how long Acquire waits for a slot when MaxInflight is set.
	MaxWait time.Duration

	// OnStateChange, when set, is called after every state transition.
	OnStateChange func(State)
}

func (c *Config) applyDefaults() {
	if c.Registry == nil {
		c.Registry = backend.DefaultRegistry()
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.MaxInflight < 0 {
		c.MaxInflight = 0
	}
}
