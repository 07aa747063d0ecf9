package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lightserve/internal/config"
	"lightserve/pkg/types"
)

// Echo backend parameters read from the descriptor.
const (
	ParamStartupDelay = "startup_delay"
	ParamStartError   = "start_error"
	ParamMaxModelLen  = "max_model_len"
	ParamEmbeddingDim = "embedding_dim"
)

// Token ids above the byte range are reserved for special tokens.
const (
	echoBOS = 256
	echoEOS = 257
)

// MaxEmbeddingDim caps both the configured and the requested vector size.
const MaxEmbeddingDim = 8192

// echoBackend answers every capability deterministically without a model.
// Tokens are bytes, completions repeat the prompt and embeddings are derived
// from a hash of the input.
type echoBackend struct {
	model        string
	startupDelay time.Duration
	startErr     string
	maxModelLen  int
	embedDim     int
	log          zerolog.Logger
	stopped      atomic.Bool
	now          func() time.Time
}

// NewEcho constructs the echo backend.
func NewEcho(d config.Descriptor, opts Options) (Backend, error) {
	b := &echoBackend{
		model:        d.Model,
		startupDelay: d.Duration(ParamStartupDelay, 0),
		startErr:     d.String(ParamStartError, ""),
		maxModelLen:  d.Int(ParamMaxModelLen, 4096),
		embedDim:     d.Int(ParamEmbeddingDim, 16),
		log:          opts.Logger.With().Str("backend", string(KindEcho)).Logger(),
		now:          time.Now,
	}
	if b.embedDim <= 0 || b.embedDim > MaxEmbeddingDim {
		return nil, fmt.Errorf("echo: %s must be in 1..%d", ParamEmbeddingDim, MaxEmbeddingDim)
	}
	return b, nil
}

func (b *echoBackend) Kind() Kind    { return KindEcho }
func (b *echoBackend) Model() string { return b.model }

func (b *echoBackend) Start(ctx context.Context) error {
	if b.startupDelay > 0 {
		t := time.NewTimer(b.startupDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.startErr != "" {
		return errors.New(b.startErr)
	}
	b.log.Debug().Str("model", b.model).Msg("echo backend ready")
	return nil
}

func (b *echoBackend) Shutdown(ctx context.Context) error {
	b.stopped.Store(true)
	return nil
}

func (b *echoBackend) checkRunning() error {
	if b.stopped.Load() {
		return NewStatusError(http.StatusServiceUnavailable, "echo backend stopped")
	}
	return nil
}

func (b *echoBackend) ChatCompletion(ctx context.Context, req *types.ChatCompletionRequest, _ *http.Request) (*Response, error) {
	if err := b.checkRunning(); err != nil {
		return nil, err
	}
	var reply string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			reply = req.Messages[i].Text()
			break
		}
	}
	text, finish := truncateTokens(reply, req.MaxTokens)
	prompt := len(renderChat(req.Messages, true))
	id := "chatcmpl-" + uuid.NewString()
	created := b.now().Unix()

	if req.Stream {
		var buf bytes.Buffer
		chunk := types.ChatCompletionResponse{ID: id, Object: "chat.completion.chunk", Created: created, Model: b.model}
		chunk.Choices = []types.ChatChoice{{Delta: &types.ChatMessage{Role: "assistant"}}}
		writeSSE(&buf, chunk)
		for _, piece := range splitWords(text) {
			content, _ := json.Marshal(piece)
			chunk.Choices = []types.ChatChoice{{Delta: &types.ChatMessage{Content: content}}}
			writeSSE(&buf, chunk)
		}
		chunk.Choices = []types.ChatChoice{{Delta: &types.ChatMessage{}, FinishReason: finish}}
		writeSSE(&buf, chunk)
		buf.WriteString("data: [DONE]\n\n")
		return &Response{Status: http.StatusOK, ContentType: "text/event-stream", Stream: io.NopCloser(&buf)}, nil
	}

	content, _ := json.Marshal(text)
	return JSONResponse(types.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   b.model,
		Choices: []types.ChatChoice{{
			Message:      &types.ChatMessage{Role: "assistant", Content: content},
			FinishReason: finish,
		}},
		Usage: usage(prompt, len(text)),
	})
}

func (b *echoBackend) Completion(ctx context.Context, req *types.CompletionRequest, _ *http.Request) (*Response, error) {
	if err := b.checkRunning(); err != nil {
		return nil, err
	}
	prompt, ok := req.PromptText()
	if !ok {
		return nil, NewStatusError(http.StatusBadRequest, "echo: prompt must be a string or an array of strings")
	}
	text, finish := truncateTokens(prompt, req.MaxTokens)
	if req.Echo {
		text = prompt + text
	}
	id := "cmpl-" + uuid.NewString()
	created := b.now().Unix()

	if req.Stream {
		var buf bytes.Buffer
		chunk := types.CompletionResponse{ID: id, Object: "text_completion", Created: created, Model: b.model}
		for _, piece := range splitWords(text) {
			chunk.Choices = []types.CompletionChoice{{Text: piece}}
			writeSSE(&buf, chunk)
		}
		chunk.Choices = []types.CompletionChoice{{FinishReason: finish}}
		writeSSE(&buf, chunk)
		buf.WriteString("data: [DONE]\n\n")
		return &Response{Status: http.StatusOK, ContentType: "text/event-stream", Stream: io.NopCloser(&buf)}, nil
	}

	return JSONResponse(types.CompletionResponse{
		ID:      id,
		Object:  "text_completion",
		Created: created,
		Model:   b.model,
		Choices: []types.CompletionChoice{{Text: text, FinishReason: finish}},
		Usage:   usage(len(prompt), len(text)),
	})
}

func (b *echoBackend) TokenizeCompletion(ctx context.Context, req *types.TokenizeCompletionRequest, _ *http.Request) (*Response, error) {
	if err := b.checkRunning(); err != nil {
		return nil, err
	}
	return b.tokenize(req.Prompt, boolOr(req.AddSpecialTokens, true))
}

func (b *echoBackend) TokenizeChat(ctx context.Context, req *types.TokenizeChatRequest, _ *http.Request) (*Response, error) {
	if err := b.checkRunning(); err != nil {
		return nil, err
	}
	text := renderChat(req.Messages, boolOr(req.AddGenerationPrompt, true))
	return b.tokenize(text, boolOr(req.AddSpecialTokens, false))
}

func (b *echoBackend) tokenize(text string, special bool) (*Response, error) {
	tokens := make([]int, 0, len(text)+1)
	if special {
		tokens = append(tokens, echoBOS)
	}
	for i := 0; i < len(text); i++ {
		tokens = append(tokens, int(text[i]))
	}
	return JSONResponse(types.TokenizeResponse{Count: len(tokens), MaxModelLen: b.maxModelLen, Tokens: tokens})
}

func (b *echoBackend) Detokenize(ctx context.Context, req *types.DetokenizeRequest, _ *http.Request) (*Response, error) {
	if err := b.checkRunning(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(req.Tokens))
	for _, t := range req.Tokens {
		switch {
		case t == echoBOS || t == echoEOS:
			continue
		case t < 0 || t > 255:
			return nil, NewStatusError(http.StatusBadRequest, fmt.Sprintf("echo: token id %d out of vocabulary", t))
		}
		out = append(out, byte(t))
	}
	return JSONResponse(types.DetokenizeResponse{Prompt: string(out)})
}

func (b *echoBackend) Embedding(ctx context.Context, req *types.EmbeddingRequest, _ *http.Request) (*Response, error) {
	if err := b.checkRunning(); err != nil {
		return nil, err
	}
	inputs, err := req.Inputs()
	if err != nil {
		return nil, NewStatusError(http.StatusBadRequest, err.Error())
	}
	dim := b.embedDim
	if req.Dimensions > MaxEmbeddingDim {
		return nil, NewStatusError(http.StatusBadRequest, fmt.Sprintf("dimensions must be <= %d", MaxEmbeddingDim))
	}
	if req.Dimensions > 0 {
		dim = req.Dimensions
	}
	total := 0
	vecs := make([][]float32, len(inputs))
	for i, in := range inputs {
		vecs[i] = hashEmbedding(in, dim)
		total += len(in)
	}

	if req.EncodingFormat == "base64" {
		type b64Data struct {
			Object    string `json:"object"`
			Index     int    `json:"index"`
			Embedding string `json:"embedding"`
		}
		data := make([]b64Data, len(vecs))
		for i, v := range vecs {
			raw := make([]byte, 4*len(v))
			for j, f := range v {
				binary.LittleEndian.PutUint32(raw[4*j:], math.Float32bits(f))
			}
			data[i] = b64Data{Object: "embedding", Index: i, Embedding: base64.StdEncoding.EncodeToString(raw)}
		}
		return JSONResponse(map[string]any{
			"object": "list",
			"model":  b.model,
			"data":   data,
			"usage":  types.Usage{PromptTokens: total, TotalTokens: total},
		})
	}

	data := make([]types.EmbeddingData, len(vecs))
	for i, v := range vecs {
		data[i] = types.EmbeddingData{Object: "embedding", Index: i, Embedding: v}
	}
	return JSONResponse(types.EmbeddingResponse{
		Object: "list",
		Model:  b.model,
		Data:   data,
		Usage:  types.Usage{PromptTokens: total, TotalTokens: total},
	})
}

// renderChat flattens messages into a single prompt using role markers.
func renderChat(msgs []types.ChatMessage, generationPrompt bool) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString("<|")
		sb.WriteString(m.Role)
		sb.WriteString("|>\n")
		sb.WriteString(m.Text())
		sb.WriteString("\n")
	}
	if generationPrompt {
		sb.WriteString("<|assistant|>\n")
	}
	return sb.String()
}

// hashEmbedding derives a unit-length vector from fnv hashes of s.
func hashEmbedding(s string, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		h := fnv.New64a()
		_, _ = fmt.Fprintf(h, "%d:%s", i, s)
		x := float64(h.Sum64()%2001)/1000 - 1
		v[i] = float32(x)
		norm += x * x
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}

// truncateTokens cuts s to max byte tokens. finish is "length" when cut.
func truncateTokens(s string, max int) (string, string) {
	if max <= 0 || len(s) <= max {
		return s, "stop"
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut, "length"
}

// splitWords splits s into chunks that concatenate back to s.
func splitWords(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s[1:], ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}

func writeSSE(w *bytes.Buffer, v any) {
	b, _ := json.Marshal(v)
	w.WriteString("data: ")
	w.Write(b)
	w.WriteString("\n\n")
}

func usage(prompt, completion int) *types.Usage {
	return &types.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
