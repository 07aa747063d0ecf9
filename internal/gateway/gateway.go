// Package gateway wires the configuration, backend manager, metrics and HTTP
// router into one serving process.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lightserve/internal/backend"
	"lightserve/internal/config"
	"lightserve/internal/httpapi"
	"lightserve/internal/manager"
	"lightserve/internal/metrics"
)

// Options carries dependencies that are not part of the configuration file.
type Options struct {
	Logger zerolog.Logger
	// Registry overrides the backend kinds; nil uses backend.DefaultRegistry.
	Registry backend.Registry
	// Listener is used instead of listening on cfg.Addr when set.
	Listener net.Listener
	// Publisher receives lifecycle events in addition to the log.
	Publisher manager.EventPublisher
	// HTTPClient is handed to proxying backends.
	HTTPClient *http.Client
}

// Gateway is a single serving process: one backend behind one HTTP server.
type Gateway struct {
	cfg  config.Config
	desc config.Descriptor
	log  zerolog.Logger

	mgr *manager.Manager
	// shared holds request metrics that sum across workers and is what the
	// exporter writes; local holds Go, process and lifecycle metrics.
	shared      *prometheus.Registry
	local       *prometheus.Registry
	httpMetrics *metrics.HTTPMetrics
	agg         *metrics.Aggregator
	exporter    *metrics.Exporter

	srv        *http.Server
	ln         net.Listener
	baseCtx    context.Context
	baseCancel context.CancelFunc

	listening chan struct{}
	runOnce   sync.Once
}

// New merges the configuration and constructs the backend. A *config.ConfigError
// or an unknown backend kind is returned before anything is started.
func New(cfg config.Config, opts Options) (*Gateway, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	desc, err := config.Merge(cfg.ModelConfig, cfg.RuntimeConfig())
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:       cfg,
		desc:      desc,
		log:       opts.Logger.With().Str("component", "gateway").Logger(),
		shared:    prometheus.NewRegistry(),
		local:     prometheus.NewRegistry(),
		ln:        opts.Listener,
		listening: make(chan struct{}),
	}
	g.local.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	g.httpMetrics = metrics.NewHTTPMetrics(g.shared, g.local)

	stateNames := make([]string, len(manager.States))
	for i, s := range manager.States {
		stateNames[i] = s.String()
	}
	g.httpMetrics.SetState(manager.StateUninitialized.String(), stateNames)

	g.mgr = manager.New(manager.Config{
		Registry: opts.Registry,
		BackendOptions: backend.Options{
			HTTPClient: opts.HTTPClient,
		},
		Logger:       opts.Logger,
		Publisher:    newLogPublisher(g.log, opts.Publisher),
		StartTimeout: cfg.StartTimeout.D(),
		DrainTimeout: cfg.DrainTimeout.D(),
		MaxInflight:  cfg.MaxInflight,
		MaxWait:      cfg.MaxWait.D(),
		OnStateChange: func(s manager.State) {
			g.httpMetrics.SetState(s.String(), stateNames)
		},
	})
	if err := g.mgr.Construct(desc); err != nil {
		return nil, err
	}

	g.agg = metrics.NewAggregator(prometheus.Gatherers{g.shared, g.local}, metrics.Options{
		MultiprocDir: cfg.Metrics.MultiprocDir,
		Local:        g.local,
		Logger:       opts.Logger,
	})
	if g.agg.Mode() == metrics.ModeMultiprocess {
		g.exporter, err = metrics.NewExporter(g.shared, metrics.ExporterConfig{
			Dir:      g.agg.Dir(),
			Interval: cfg.Metrics.FlushInterval.D(),
			Logger:   opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("metrics exporter: %w", err)
		}
	}

	g.baseCtx, g.baseCancel = context.WithCancel(context.Background())
	handler := httpapi.NewMux(g.mgr, httpapi.Options{
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RequestTimeout: cfg.RequestTimeout.D(),
		BaseContext:    g.baseCtx,
		Logger:         opts.Logger.With().Str("component", "http").Logger(),
		CORS:           cfg.CORS,
		Metrics:        g.httpMetrics,
		MetricsHandler: g.agg.Handler(),
	})
	g.srv = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// Manager exposes the lifecycle manager.
func (g *Gateway) Manager() *manager.Manager { return g.mgr }

// Descriptor returns the merged backend descriptor.
func (g *Gateway) Descriptor() config.Descriptor { return g.desc }

// Listening is closed once the HTTP listener accepts connections.
func (g *Gateway) Listening() <-chan struct{} { return g.listening }

// Addr returns the bound address; valid after Listening is closed.
func (g *Gateway) Addr() string {
	if g.ln == nil {
		return ""
	}
	return g.ln.Addr().String()
}

// Run serves until ctx is cancelled or the backend fails to start. The
// listener is opened before the backend starts so probes and /metrics answer
// while it loads. A start failure shuts everything down and is returned; a
// cancelled ctx is a normal shutdown and returns nil.
func (g *Gateway) Run(ctx context.Context) error {
	ran := false
	g.runOnce.Do(func() { ran = true })
	if !ran {
		return errors.New("gateway: Run called twice")
	}

	if g.ln == nil {
		ln, err := net.Listen("tcp", g.cfg.Addr)
		if err != nil {
			g.baseCancel()
			_ = g.mgr.Shutdown(context.Background())
			return fmt.Errorf("listen %s: %w", g.cfg.Addr, err)
		}
		g.ln = ln
	}
	close(g.listening)
	g.log.Info().Str("addr", g.Addr()).Str("backend", g.desc.Kind).Str("model", g.desc.Model).
		Str("metrics_mode", string(g.agg.Mode())).Msg("lightserve listening")

	eg, egCtx := errgroup.WithContext(ctx)
	if g.exporter != nil {
		eg.Go(func() error {
			g.exporter.Run(egCtx)
			return nil
		})
	}
	eg.Go(func() error {
		if err := g.srv.Serve(g.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if err := g.mgr.Start(egCtx); err != nil {
			if egCtx.Err() != nil {
				// Signal or server failure while loading.
				g.shutdown()
				return nil
			}
			g.log.Error().Err(err).Msg("backend failed to start")
			g.shutdown()
			return err
		}
		g.log.Info().Msg("backend ready")
		<-egCtx.Done()
		g.shutdown()
		return nil
	})
	return eg.Wait()
}

// shutdown stops accepting connections and lets admitted requests finish
// within ShutdownTimeout. After that the base context is cancelled so
// outstanding backend calls abort. The manager and exporter stop last.
func (g *Gateway) shutdown() {
	g.log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), g.cfg.ShutdownTimeout.D())
	defer cancel()
	if err := g.srv.Shutdown(sctx); err != nil {
		g.log.Warn().Err(err).Msg("graceful shutdown timed out; cancelling in-flight requests")
		g.baseCancel()
		_ = g.srv.Close()
	}
	g.baseCancel()

	mctx, mcancel := context.WithTimeout(context.Background(), g.cfg.DrainTimeout.D()+g.cfg.ShutdownTimeout.D())
	defer mcancel()
	_ = g.mgr.Shutdown(mctx)

	if g.exporter != nil {
		if err := g.exporter.Stop(mctx); err != nil {
			g.log.Warn().Err(err).Msg("metrics exporter stop")
		}
	}
	g.log.Info().Str("state", g.mgr.State().String()).Msg("shutdown complete")
}
