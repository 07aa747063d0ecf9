package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"lightserve/internal/backend"
	"lightserve/internal/config"
	"lightserve/internal/manager"
	"lightserve/pkg/types"
)

type mockService struct {
	state      manager.State
	status     types.StatusResponse
	b          backend.Backend
	acquireErr error
	acquired   atomic.Int32
	released   atomic.Int32
}

func (m *mockService) State() manager.State          { return m.state }
func (m *mockService) Ready() bool                   { return m.state == manager.StateReady }
func (m *mockService) Status() types.StatusResponse  { return m.status }
func (m *mockService) Descriptor() config.Descriptor { return config.Descriptor{Kind: "echo", Model: "m1"} }
func (m *mockService) Acquire(ctx context.Context) (backend.Backend, func(), error) {
	if m.acquireErr != nil {
		return nil, nil, m.acquireErr
	}
	m.acquired.Add(1)
	return m.b, func() { m.released.Add(1) }, nil
}

func newEchoService(t *testing.T) *mockService {
	t.Helper()
	b, err := backend.NewEcho(config.Descriptor{Kind: "echo", Model: "m1"}, backend.Options{})
	if err != nil {
		t.Fatalf("new echo: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start echo: %v", err)
	}
	return &mockService{state: manager.StateReady, status: types.StatusResponse{State: "ready", Model: "m1"}, b: b}
}

// stubBackend returns fixed results for every capability.
type stubBackend struct {
	resp *backend.Response
	err  error
	// block, when set, makes calls wait for ctx.
	block  bool
	gotCtx context.Context
	gotReq *http.Request
}

func (s *stubBackend) Kind() backend.Kind                 { return "stub" }
func (s *stubBackend) Model() string                      { return "m1" }
func (s *stubBackend) Start(ctx context.Context) error    { return nil }
func (s *stubBackend) Shutdown(ctx context.Context) error { return nil }

func (s *stubBackend) call(ctx context.Context, r *http.Request) (*backend.Response, error) {
	s.gotCtx = ctx
	s.gotReq = r
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.resp, s.err
}

func (s *stubBackend) ChatCompletion(ctx context.Context, _ *types.ChatCompletionRequest, r *http.Request) (*backend.Response, error) {
	return s.call(ctx, r)
}
func (s *stubBackend) Completion(ctx context.Context, _ *types.CompletionRequest, r *http.Request) (*backend.Response, error) {
	return s.call(ctx, r)
}
func (s *stubBackend) TokenizeCompletion(ctx context.Context, _ *types.TokenizeCompletionRequest, r *http.Request) (*backend.Response, error) {
	return s.call(ctx, r)
}
func (s *stubBackend) TokenizeChat(ctx context.Context, _ *types.TokenizeChatRequest, r *http.Request) (*backend.Response, error) {
	return s.call(ctx, r)
}
func (s *stubBackend) Detokenize(ctx context.Context, _ *types.DetokenizeRequest, r *http.Request) (*backend.Response, error) {
	return s.call(ctx, r)
}
func (s *stubBackend) Embedding(ctx context.Context, _ *types.EmbeddingRequest, r *http.Request) (*backend.Response, error) {
	return s.call(ctx, r)
}
