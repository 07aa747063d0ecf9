package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lightserve/internal/backend"
	"lightserve/internal/config"
	"lightserve/internal/manager"
	"lightserve/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	State() manager.State
	Ready() bool
	Status() types.StatusResponse
	Descriptor() config.Descriptor
	Acquire(ctx context.Context) (backend.Backend, func(), error)
}

type server struct {
	svc  Service
	opts Options
}

// NewMux builds the gateway router.
func NewMux(svc Service, opts Options) http.Handler {
	opts.applyDefaults()
	s := &server{svc: svc, opts: opts}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, access log, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if opts.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORS.AllowedOrigins,
			AllowedMethods: opts.CORS.AllowedMethods,
			AllowedHeaders: opts.CORS.AllowedHeaders,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	// Compression for JSON endpoints; event streams are left alone
	r.Use(middleware.Compress(5))

	r.Get("/health", s.health)
	r.Get("/healthz", s.health)
	r.Get("/readyz", s.readyz)
	r.Get("/status", s.status)
	r.Get("/v1/models", s.models)

	r.Post("/v1/chat/completions", s.chatCompletions)
	r.Post("/v1/completions", s.completions)
	r.Post("/tokenize_completion", s.tokenizeCompletion)
	r.Post("/tokenize_chat", s.tokenizeChat)
	r.Post("/detokenize", s.detokenize)
	r.Post("/v1/embeddings", s.embeddings)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	MountSwagger(r)
	return r
}

// health godoc
// @Summary      Liveness probe
// @Description  200 while the process serves requests, 503 once the backend is stopped.
// @Tags         health
// @Produce      plain
// @Success      200  {string}  string  "ok"
// @Failure      503  {string}  string  "stopped"
// @Router       /health [get]
func (s *server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.svc.State() == manager.StateStopped {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("stopped"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz godoc
// @Summary      Readiness probe
// @Tags         health
// @Produce      plain
// @Success      200  {string}  string  "ready"
// @Failure      503  {string}  string  "lifecycle state"
// @Router       /readyz [get]
func (s *server) readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.svc.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(s.svc.State().String()))
}

// status godoc
// @Summary      Gateway status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (s *server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// models godoc
// @Summary      List served models
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelList
// @Failure      503  {object}  types.ErrorResponse
// @Router       /v1/models [get]
func (s *server) models(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Ready() {
		writeJSONError(w, http.StatusServiceUnavailable, "backend not ready (state="+s.svc.State().String()+")")
		return
	}
	st := s.svc.Status()
	name := st.Model
	if name == "" {
		name = s.svc.Descriptor().String(config.KeyModelName, "")
	}
	list := types.ModelList{Object: "list", Data: []types.ModelCard{}}
	if name != "" {
		list.Data = append(list.Data, types.ModelCard{
			ID:      name,
			Object:  "model",
			Created: st.ReadyAtUnix,
			OwnedBy: "lightserve",
		})
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
