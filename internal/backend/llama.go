//go:build llama

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lightserve/internal/config"
	"lightserve/pkg/types"
)

// llamaBackend runs a GGUF model in-process. The model is not safe for
// concurrent use, so every call holds mu.
type llamaBackend struct {
	model     string
	ctxSize   int
	threads   int
	embedding bool
	pathErr   error
	path      string
	log       zerolog.Logger

	mu sync.Mutex
	lm *llama.LLama
}

// NewLlama constructs the in-process llama backend. The model loads in Start.
func NewLlama(d config.Descriptor, opts Options) (Backend, error) {
	path, err := resolveModelPath(d)
	return &llamaBackend{
		model:     d.Model,
		ctxSize:   d.Int(ParamContextSize, 2048),
		threads:   d.Int(ParamThreads, 4),
		embedding: d.Bool(config.KeyIsEmbedding, false),
		path:      path,
		pathErr:   err,
		log:       opts.Logger.With().Str("backend", string(KindLlama)).Logger(),
	}, nil
}

func (b *llamaBackend) Kind() Kind    { return KindLlama }
func (b *llamaBackend) Model() string { return b.model }

func (b *llamaBackend) Start(ctx context.Context) error {
	if b.pathErr != nil {
		return b.pathErr
	}
	mo := []llama.ModelOption{llama.SetContext(b.ctxSize)}
	if b.embedding {
		mo = append(mo, llama.EnableEmbeddings)
	}
	type result struct {
		lm  *llama.LLama
		err error
	}
	ch := make(chan result, 1)
	go func() {
		lm, err := llama.New(b.path, mo...)
		ch <- result{lm, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		b.mu.Lock()
		b.lm = r.lm
		b.mu.Unlock()
		b.log.Info().Str("path", b.path).Msg("model loaded")
		return nil
	case <-ctx.Done():
		// Free the model once the load finishes.
		go func() {
			if r := <-ch; r.lm != nil {
				r.lm.Free()
			}
		}()
		return ctx.Err()
	}
}

func (b *llamaBackend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lm != nil {
		b.lm.Free()
		b.lm = nil
	}
	return nil
}

func (b *llamaBackend) predictOptions(maxTokens int, temp, topP *float64, seed *int64, stop []string) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, maxTokens)),
		llama.SetThreads(max(1, b.threads)),
		llama.SetTopP(float32(floatOr(topP, float64(llama.DefaultOptions.TopP)))),
		llama.SetTemperature(float32(floatOr(temp, float64(llama.DefaultOptions.Temperature)))),
	}
	if seed != nil {
		po = append(po, llama.SetSeed(int(*seed)))
	}
	if len(stop) > 0 {
		po = append(po, llama.SetStopWords(stop...))
	}
	return po
}

// generate runs a prediction. With onToken set, tokens are forwarded as they
// are produced and the callback may stop generation by returning false.
func (b *llamaBackend) generate(ctx context.Context, prompt string, po []llama.PredictOption, onToken func(string) bool) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lm == nil {
		return "", NewStatusError(http.StatusServiceUnavailable, "llama model not loaded")
	}
	b.lm.SetTokenCallback(func(tok string) bool {
		if ctx.Err() != nil {
			return false
		}
		if onToken != nil {
			return onToken(tok)
		}
		return true
	})
	defer b.lm.SetTokenCallback(nil)
	text, err := b.lm.Predict(prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (b *llamaBackend) ChatCompletion(ctx context.Context, req *types.ChatCompletionRequest, _ *http.Request) (*Response, error) {
	prompt := renderChat(req.Messages, true)
	po := b.predictOptions(req.MaxTokens, req.Temperature, req.TopP, req.Seed, req.Stop)
	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	if req.Stream {
		return b.stream(ctx, prompt, po, func(piece string, final bool) any {
			chunk := types.ChatCompletionResponse{ID: id, Object: "chat.completion.chunk", Created: created, Model: b.model}
			if final {
				chunk.Choices = []types.ChatChoice{{Delta: &types.ChatMessage{}, FinishReason: "stop"}}
				return chunk
			}
			content, _ := json.Marshal(piece)
			chunk.Choices = []types.ChatChoice{{Delta: &types.ChatMessage{Role: "assistant", Content: content}}}
			return chunk
		}), nil
	}
	text, err := b.generate(ctx, prompt, po, nil)
	if err != nil {
		return nil, err
	}
	content, _ := json.Marshal(text)
	return JSONResponse(types.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   b.model,
		Choices: []types.ChatChoice{{Message: &types.ChatMessage{Role: "assistant", Content: content}, FinishReason: "stop"}},
	})
}

func (b *llamaBackend) Completion(ctx context.Context, req *types.CompletionRequest, _ *http.Request) (*Response, error) {
	prompt, ok := req.PromptText()
	if !ok {
		return nil, NewStatusError(http.StatusBadRequest, "llama: prompt must be a string or an array of strings")
	}
	po := b.predictOptions(req.MaxTokens, req.Temperature, req.TopP, req.Seed, req.Stop)
	id := "cmpl-" + uuid.NewString()
	created := time.Now().Unix()
	if req.Stream {
		return b.stream(ctx, prompt, po, func(piece string, final bool) any {
			chunk := types.CompletionResponse{ID: id, Object: "text_completion", Created: created, Model: b.model}
			if final {
				chunk.Choices = []types.CompletionChoice{{FinishReason: "stop"}}
			} else {
				chunk.Choices = []types.CompletionChoice{{Text: piece}}
			}
			return chunk
		}), nil
	}
	text, err := b.generate(ctx, prompt, po, nil)
	if err != nil {
		return nil, err
	}
	return JSONResponse(types.CompletionResponse{
		ID:      id,
		Object:  "text_completion",
		Created: created,
		Model:   b.model,
		Choices: []types.CompletionChoice{{Text: text, FinishReason: "stop"}},
	})
}

// stream runs generate in the background and exposes the tokens as an SSE
// body. chunk builds the event payload for each token and the final event.
func (b *llamaBackend) stream(ctx context.Context, prompt string, po []llama.PredictOption, chunk func(piece string, final bool) any) *Response {
	pr, pw := io.Pipe()
	write := func(v any) bool {
		var buf bytes.Buffer
		writeSSE(&buf, v)
		_, err := pw.Write(buf.Bytes())
		return err == nil
	}
	go func() {
		_, err := b.generate(ctx, prompt, po, func(tok string) bool { return write(chunk(tok, false)) })
		if err != nil && !errors.Is(err, context.Canceled) {
			b.log.Warn().Err(err).Msg("stream generation failed")
			_ = pw.CloseWithError(err)
			return
		}
		write(chunk("", true))
		_, _ = io.WriteString(pw, "data: [DONE]\n\n")
		_ = pw.Close()
	}()
	return &Response{Status: http.StatusOK, ContentType: "text/event-stream", Stream: pr}
}

func (b *llamaBackend) TokenizeCompletion(ctx context.Context, req *types.TokenizeCompletionRequest, _ *http.Request) (*Response, error) {
	return b.tokenize(req.Prompt)
}

func (b *llamaBackend) TokenizeChat(ctx context.Context, req *types.TokenizeChatRequest, _ *http.Request) (*Response, error) {
	return b.tokenize(renderChat(req.Messages, boolOr(req.AddGenerationPrompt, true)))
}

func (b *llamaBackend) tokenize(text string) (*Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lm == nil {
		return nil, NewStatusError(http.StatusServiceUnavailable, "llama model not loaded")
	}
	_, ids, err := b.lm.TokenizeString(text)
	if err != nil {
		return nil, err
	}
	tokens := make([]int, len(ids))
	for i, id := range ids {
		tokens[i] = int(id)
	}
	return JSONResponse(types.TokenizeResponse{Count: len(tokens), MaxModelLen: b.ctxSize, Tokens: tokens})
}

func (b *llamaBackend) Detokenize(context.Context, *types.DetokenizeRequest, *http.Request) (*Response, error) {
	return nil, Unsupported("detokenize")
}

func (b *llamaBackend) Embedding(ctx context.Context, req *types.EmbeddingRequest, _ *http.Request) (*Response, error) {
	if !b.embedding {
		return nil, Unsupported("embeddings (set is_embedding)")
	}
	inputs, err := req.Inputs()
	if err != nil {
		return nil, NewStatusError(http.StatusBadRequest, err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lm == nil {
		return nil, NewStatusError(http.StatusServiceUnavailable, "llama model not loaded")
	}
	data := make([]types.EmbeddingData, 0, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := b.lm.Embeddings(in, llama.SetThreads(max(1, b.threads)))
		if err != nil {
			return nil, err
		}
		data = append(data, types.EmbeddingData{Object: "embedding", Index: i, Embedding: vec})
	}
	return JSONResponse(types.EmbeddingResponse{Object: "list", Model: b.model, Data: data})
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
