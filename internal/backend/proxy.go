package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"lightserve/internal/config"
	"lightserve/pkg/types"
)

// Proxy backend parameters read from the descriptor.
const (
	ParamUpstreamURL     = "upstream_url"
	ParamAPIKey          = "api_key"
	ParamHealthPath      = "health_path"
	ParamBreakerFailures = "breaker_failures"
	ParamBreakerTimeout  = "breaker_timeout"
)

var errUpstreamStatus = errors.New("upstream server error")

// proxyBackend forwards request bodies to an OpenAI-compatible server and
// copies the answer back untouched. When proc is set the server is spawned
// by Start and terminated by Shutdown.
type proxyBackend struct {
	kind       Kind
	model      string
	baseURL    string
	apiKey     string
	healthPath string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	proc       *process
	log        zerolog.Logger
}

// NewOpenAI attaches to an already running OpenAI-compatible server.
func NewOpenAI(d config.Descriptor, opts Options) (Backend, error) {
	upstream := strings.TrimRight(d.String(ParamUpstreamURL, ""), "/")
	if upstream == "" {
		return nil, fmt.Errorf("openai backend: %s is required", ParamUpstreamURL)
	}
	return newProxy(KindOpenAI, d, opts, upstream, "/v1/models"), nil
}

func newProxy(kind Kind, d config.Descriptor, opts Options, baseURL, defaultHealth string) *proxyBackend {
	client := opts.HTTPClient
	if client == nil {
		// No global timeout: every call carries a context deadline.
		client = &http.Client{Timeout: 0}
	}
	p := &proxyBackend{
		kind:       kind,
		model:      d.Model,
		baseURL:    baseURL,
		apiKey:     d.String(ParamAPIKey, ""),
		healthPath: d.String(ParamHealthPath, defaultHealth),
		client:     client,
		log:        opts.Logger.With().Str("backend", string(kind)).Logger(),
	}
	failures := uint32(max(1, d.Int(ParamBreakerFailures, 5)))
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(kind) + ":" + d.Model,
		MaxRequests: 1,
		Timeout:     d.Duration(ParamBreakerTimeout, 30*time.Second),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return p
}

func (p *proxyBackend) Kind() Kind    { return p.kind }
func (p *proxyBackend) Model() string { return p.model }

// Start spawns the server when configured, then polls the health endpoint
// until it answers 2xx or ctx ends.
func (p *proxyBackend) Start(ctx context.Context) error {
	var exited <-chan struct{}
	if p.proc != nil {
		if err := p.proc.start(p.log); err != nil {
			return err
		}
		exited = p.proc.exited
	}
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if p.healthy(ctx) {
			p.log.Info().Str("url", p.baseURL).Msg("upstream ready")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not ready at %s: %w", p.kind, p.baseURL, ctx.Err())
		case <-exited:
			return p.proc.exitError()
		case <-tick.C:
		}
	}
}

func (p *proxyBackend) healthy(ctx context.Context) bool {
	hctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(hctx, http.MethodGet, p.baseURL+p.healthPath, nil)
	if err != nil {
		return false
	}
	p.authorize(req, nil)
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Shutdown terminates a spawned server. Attached upstreams are left running.
func (p *proxyBackend) Shutdown(ctx context.Context) error {
	p.client.CloseIdleConnections()
	if p.proc == nil {
		return nil
	}
	return p.proc.stop(ctx, p.log)
}

func (p *proxyBackend) ChatCompletion(ctx context.Context, req *types.ChatCompletionRequest, raw *http.Request) (*Response, error) {
	return p.forward(ctx, "/v1/chat/completions", req.Raw, req, raw)
}

func (p *proxyBackend) Completion(ctx context.Context, req *types.CompletionRequest, raw *http.Request) (*Response, error) {
	return p.forward(ctx, "/v1/completions", req.Raw, req, raw)
}

func (p *proxyBackend) TokenizeCompletion(ctx context.Context, req *types.TokenizeCompletionRequest, raw *http.Request) (*Response, error) {
	return p.forward(ctx, "/tokenize", req.Raw, req, raw)
}

func (p *proxyBackend) TokenizeChat(ctx context.Context, req *types.TokenizeChatRequest, raw *http.Request) (*Response, error) {
	return p.forward(ctx, "/tokenize", req.Raw, req, raw)
}

func (p *proxyBackend) Detokenize(ctx context.Context, req *types.DetokenizeRequest, raw *http.Request) (*Response, error) {
	return p.forward(ctx, "/detokenize", req.Raw, req, raw)
}

func (p *proxyBackend) Embedding(ctx context.Context, req *types.EmbeddingRequest, raw *http.Request) (*Response, error) {
	return p.forward(ctx, "/v1/embeddings", req.Raw, req, raw)
}

// forward posts body (or v re-encoded when body is empty) to path. Upstream
// answers of any status are returned as the Response; only transport
// failures and an open breaker become errors.
func (p *proxyBackend) forward(ctx context.Context, path string, body []byte, v any, in *http.Request) (*Response, error) {
	if len(body) == 0 {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		body = b
	}
	res, err := p.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		p.authorize(req, in)
		resp, err := p.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		out := p.toResponse(resp)
		if resp.StatusCode >= 500 {
			return out, errUpstreamStatus
		}
		return out, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errUpstreamStatus):
			return res.(*Response), nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, NewStatusError(http.StatusServiceUnavailable, fmt.Sprintf("%s upstream unavailable: %v", p.kind, err))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		}
		return nil, NewStatusError(http.StatusBadGateway, fmt.Sprintf("%s upstream request failed: %v", p.kind, err))
	}
	return res.(*Response), nil
}

// toResponse wraps resp. Event streams pass through; other bodies are read
// fully so the connection can be reused.
func (p *proxyBackend) toResponse(resp *http.Response) *Response {
	out := &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      http.Header{},
	}
	for k, vals := range resp.Header {
		switch http.CanonicalHeaderKey(k) {
		case "Content-Type", "Content-Length", "Connection", "Transfer-Encoding", "Keep-Alive":
			continue
		}
		out.Header[k] = append([]string(nil), vals...)
	}
	if strings.HasPrefix(out.ContentType, "text/event-stream") {
		out.Stream = resp.Body
		return out
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Warn().Err(err).Msg("reading upstream body")
	}
	out.Body = b
	return out
}

func (p *proxyBackend) authorize(req *http.Request, in *http.Request) {
	switch {
	case p.apiKey != "":
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	case in != nil && in.Header.Get("Authorization") != "":
		req.Header.Set("Authorization", in.Header.Get("Authorization"))
	}
	if in != nil {
		if id := in.Header.Get("X-Request-Id"); id != "" {
			req.Header.Set("X-Request-Id", id)
		}
	}
}
