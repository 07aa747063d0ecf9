package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
)

// ExporterConfig configures the worker-side textfile exporter.
type ExporterConfig struct {
	Dir      string
	Interval time.Duration
	// Name is the file stem; defaults to the process id.
	Name string
	// RemoveOnStop deletes the file on Stop. Merged counters then drop by
	// this worker's totals, so it is meant for tests and throwaway dirs.
	RemoveOnStop bool
	Logger       zerolog.Logger
}

// Exporter periodically writes the local registry into the multiprocess
// directory so an Aggregator in any worker can merge it.
type Exporter struct {
	path     string
	interval time.Duration
	remove   bool
	gatherer prometheus.Gatherer
	log      zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopped  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewExporter validates the directory and prepares the file path.
func NewExporter(g prometheus.Gatherer, cfg ExporterConfig) (*Exporter, error) {
	if cfg.Dir == "" {
		return nil, errors.New("exporter: dir is required")
	}
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = strconv.Itoa(os.Getpid())
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Exporter{
		path:     filepath.Join(cfg.Dir, name+FileExt),
		interval: cfg.Interval,
		remove:   cfg.RemoveOnStop,
		gatherer: g,
		log:      cfg.Logger.With().Str("component", "metrics_exporter").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Path returns the file this exporter writes.
func (e *Exporter) Path() string { return e.path }

// Flush writes the current registry once. The write is atomic.
func (e *Exporter) Flush() error {
	return prometheus.WriteToTextfile(e.path, e.gatherer)
}

// Run flushes on every tick until ctx is done or Stop is called. It returns
// at once if Stop already ran or Run is already running.
func (e *Exporter) Run(ctx context.Context) {
	e.mu.Lock()
	if e.running || e.stopped {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	defer close(e.done)
	if err := e.Flush(); err != nil {
		e.log.Warn().Err(err).Msg("metrics flush failed")
	}
	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-t.C:
			if err := e.Flush(); err != nil {
				e.log.Warn().Err(err).Msg("metrics flush failed")
			}
		}
	}
}

// Stop ends Run and writes a final snapshot without gauge families. Counters,
// histograms and summaries stay in the file so merged totals never go
// backwards when a worker exits; gauges describe live state and would
// otherwise linger. It does not wait when Run was never started.
func (e *Exporter) Stop(ctx context.Context) error {
	var err error
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		running := e.running
		e.mu.Unlock()

		close(e.stop)
		if running {
			select {
			case <-e.done:
			case <-ctx.Done():
			}
		}
		if e.remove {
			if rerr := os.Remove(e.path); rerr != nil && !os.IsNotExist(rerr) {
				err = rerr
			}
			return
		}
		err = prometheus.WriteToTextfile(e.path, prometheus.GathererFunc(e.gatherRetired))
	})
	return err
}

// gatherRetired is the registry minus its gauges.
func (e *Exporter) gatherRetired() ([]*dto.MetricFamily, error) {
	mfs, err := e.gatherer.Gather()
	kept := mfs[:0]
	for _, mf := range mfs {
		if mf.GetType() != dto.MetricType_GAUGE {
			kept = append(kept, mf)
		}
	}
	return kept, err
}
