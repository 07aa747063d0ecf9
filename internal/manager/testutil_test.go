package manager

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"lightserve/internal/backend"
	"lightserve/internal/config"
	"lightserve/pkg/types"
)

// fakeBackend records lifecycle calls. Start blocks on gate when set.
type fakeBackend struct {
	startErr    error
	shutdownErr error
	gate        chan struct{}

	starts    atomic.Int32
	shutdowns atomic.Int32
	calls     atomic.Int32
	mu        sync.Mutex
	order     []string
}

func (f *fakeBackend) note(s string) {
	f.mu.Lock()
	f.order = append(f.order, s)
	f.mu.Unlock()
}

func (f *fakeBackend) Kind() backend.Kind { return "fake" }
func (f *fakeBackend) Model() string      { return "m1" }

func (f *fakeBackend) Start(ctx context.Context) error {
	f.starts.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.startErr
}

func (f *fakeBackend) Shutdown(ctx context.Context) error {
	f.shutdowns.Add(1)
	f.note("backend_shutdown")
	return f.shutdownErr
}

func (f *fakeBackend) call() (*backend.Response, error) {
	f.calls.Add(1)
	return nil, errors.New("not used")
}

func (f *fakeBackend) ChatCompletion(context.Context, *types.ChatCompletionRequest, *http.Request) (*backend.Response, error) {
	return f.call()
}
func (f *fakeBackend) Completion(context.Context, *types.CompletionRequest, *http.Request) (*backend.Response, error) {
	return f.call()
}
func (f *fakeBackend) TokenizeCompletion(context.Context, *types.TokenizeCompletionRequest, *http.Request) (*backend.Response, error) {
	return f.call()
}
func (f *fakeBackend) TokenizeChat(context.Context, *types.TokenizeChatRequest, *http.Request) (*backend.Response, error) {
	return f.call()
}
func (f *fakeBackend) Detokenize(context.Context, *types.DetokenizeRequest, *http.Request) (*backend.Response, error) {
	return f.call()
}
func (f *fakeBackend) Embedding(context.Context, *types.EmbeddingRequest, *http.Request) (*backend.Response, error) {
	return f.call()
}

func fakeDescriptor() config.Descriptor {
	return config.Descriptor{Kind: "fake", Model: "m1", Params: map[string]any{}}
}

// newManager returns a manager whose registry serves fb under kind "fake".
func newManager(t *testing.T, fb *fakeBackend, mutate func(*Config)) (*Manager, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	cfg := Config{
		Registry: backend.Registry{"fake": func(config.Descriptor, backend.Options) (backend.Backend, error) {
			return fb, nil
		}},
		Logger:    zerolog.Nop(),
		Publisher: pub,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), pub
}

func mustStart(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Construct(fakeDescriptor()); err != nil {
		t.Fatalf("construct: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}
