//go:build !llama

package backend

import (
	"context"
	"net/http"

	"lightserve/internal/config"
	"lightserve/pkg/types"
)

// llamaBackend is compiled when the 'llama' build tag is NOT set. The kind
// stays registered so configuration errors surface at Start with a clear
// message instead of as an unknown kind.
type llamaBackend struct {
	model string
	path  string
	err   error
}

// NewLlama constructs the llama backend stub.
func NewLlama(d config.Descriptor, opts Options) (Backend, error) {
	path, err := resolveModelPath(d)
	return &llamaBackend{model: d.Model, path: path, err: err}, nil
}

func (b *llamaBackend) Kind() Kind    { return KindLlama }
func (b *llamaBackend) Model() string { return b.model }

func (b *llamaBackend) Start(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	return ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (b *llamaBackend) Shutdown(ctx context.Context) error { return nil }

func (b *llamaBackend) ChatCompletion(context.Context, *types.ChatCompletionRequest, *http.Request) (*Response, error) {
	return nil, ErrDependencyUnavailable("llama support not built")
}

func (b *llamaBackend) Completion(context.Context, *types.CompletionRequest, *http.Request) (*Response, error) {
	return nil, ErrDependencyUnavailable("llama support not built")
}

func (b *llamaBackend) TokenizeCompletion(context.Context, *types.TokenizeCompletionRequest, *http.Request) (*Response, error) {
	return nil, ErrDependencyUnavailable("llama support not built")
}

func (b *llamaBackend) TokenizeChat(context.Context, *types.TokenizeChatRequest, *http.Request) (*Response, error) {
	return nil, ErrDependencyUnavailable("llama support not built")
}

func (b *llamaBackend) Detokenize(context.Context, *types.DetokenizeRequest, *http.Request) (*Response, error) {
	return nil, ErrDependencyUnavailable("llama support not built")
}

func (b *llamaBackend) Embedding(context.Context, *types.EmbeddingRequest, *http.Request) (*Response, error) {
	return nil, ErrDependencyUnavailable("llama support not built")
}
