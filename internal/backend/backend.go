// Package backend defines the capability set every inference backend
// implements and the registry mapping backend kinds to constructors.
package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"lightserve/internal/config"
	"lightserve/pkg/types"
)

// Kind enumerates the supported backend implementations.
type Kind string

const (
	KindEcho   Kind = "echo"
	KindOpenAI Kind = "openai"
	KindVLLM   Kind = "vllm"
	KindSGLang Kind = "sglang"
	KindLlama  Kind = "llama"
)

// ParseKind normalizes a backend name. It does not check registration.
func ParseKind(s string) Kind { return Kind(strings.ToLower(strings.TrimSpace(s))) }

func (k Kind) String() string { return string(k) }

// Backend is the capability set the router dispatches to. Start may block
// for a long time (model load); every other method must be safe for
// concurrent use once Start has returned nil.
type Backend interface {
	Kind() Kind
	Model() string

	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error

	ChatCompletion(ctx context.Context, req *types.ChatCompletionRequest, raw *http.Request) (*Response, error)
	Completion(ctx context.Context, req *types.CompletionRequest, raw *http.Request) (*Response, error)
	TokenizeCompletion(ctx context.Context, req *types.TokenizeCompletionRequest, raw *http.Request) (*Response, error)
	TokenizeChat(ctx context.Context, req *types.TokenizeChatRequest, raw *http.Request) (*Response, error)
	Detokenize(ctx context.Context, req *types.DetokenizeRequest, raw *http.Request) (*Response, error)
	Embedding(ctx context.Context, req *types.EmbeddingRequest, raw *http.Request) (*Response, error)
}

// Response is written back to the client verbatim. Exactly one of Body and
// Stream is used; Stream takes precedence and is closed by the writer.
type Response struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
	Stream      io.ReadCloser
}

// JSONResponse encodes v as a 200 application/json response.
func JSONResponse(v any) (*Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusOK, ContentType: "application/json", Body: b}, nil
}

// Options carries process-wide collaborators into backend constructors.
type Options struct {
	Logger zerolog.Logger
	// HTTPClient is used by proxying backends; nil selects a client without
	// a global timeout (calls are bounded by their contexts).
	HTTPClient *http.Client
}

// Factory builds an unstarted backend from a merged descriptor.
type Factory func(d config.Descriptor, opts Options) (Backend, error)

// Registry maps backend kinds to their factories.
type Registry map[Kind]Factory

// DefaultRegistry returns the registry of all built-in backends.
func DefaultRegistry() Registry {
	return Registry{
		KindEcho:   NewEcho,
		KindOpenAI: NewOpenAI,
		KindVLLM:   NewVLLM,
		KindSGLang: NewSGLang,
		KindLlama:  NewLlama,
	}
}

// Kinds lists the registered kinds in sorted order.
func (r Registry) Kinds() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// New constructs the backend selected by d.Kind. An unregistered kind yields
// an *UnknownKindError.
func (r Registry) New(d config.Descriptor, opts Options) (Backend, error) {
	k := ParseKind(d.Kind)
	f, ok := r[k]
	if !ok || f == nil {
		return nil, &UnknownKindError{Kind: d.Kind, Known: r.Kinds()}
	}
	return f(d, opts)
}
