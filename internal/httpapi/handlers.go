package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"lightserve/internal/backend"
	"lightserve/internal/manager"
	"lightserve/pkg/types"
)

type validator interface {
	Validate() error
}

// backendCall invokes one capability on an admitted backend.
type backendCall func(ctx context.Context, b backend.Backend) (*backend.Response, error)

// chatCompletions godoc
// @Summary      Chat completion
// @Description  OpenAI-compatible chat completion. With stream=true the response is text/event-stream.
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        request  body      types.ChatCompletionRequest  true  "Chat request"
// @Success      200      {object}  types.ChatCompletionResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      413      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /v1/chat/completions [post]
func (s *server) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req types.ChatCompletionRequest
	raw, ok := s.decode(w, r, &req)
	if !ok {
		return
	}
	req.Raw = raw
	s.dispatch(w, r, func(ctx context.Context, b backend.Backend) (*backend.Response, error) {
		return b.ChatCompletion(ctx, &req, r)
	})
}

// completions godoc
// @Summary      Text completion
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        request  body      types.CompletionRequest  true  "Completion request"
// @Success      200      {object}  types.CompletionResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /v1/completions [post]
func (s *server) completions(w http.ResponseWriter, r *http.Request) {
	var req types.CompletionRequest
	raw, ok := s.decode(w, r, &req)
	if !ok {
		return
	}
	req.Raw = raw
	s.dispatch(w, r, func(ctx context.Context, b backend.Backend) (*backend.Response, error) {
		return b.Completion(ctx, &req, r)
	})
}

// tokenizeCompletion godoc
// @Summary      Tokenize a prompt
// @Tags         tokenize
// @Accept       json
// @Produce      json
// @Param        request  body      types.TokenizeCompletionRequest  true  "Tokenize request"
// @Success      200      {object}  types.TokenizeResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      501      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /tokenize_completion [post]
func (s *server) tokenizeCompletion(w http.ResponseWriter, r *http.Request) {
	var req types.TokenizeCompletionRequest
	raw, ok := s.decode(w, r, &req)
	if !ok {
		return
	}
	req.Raw = raw
	s.dispatch(w, r, func(ctx context.Context, b backend.Backend) (*backend.Response, error) {
		return b.TokenizeCompletion(ctx, &req, r)
	})
}

// tokenizeChat godoc
// @Summary      Tokenize a chat conversation
// @Tags         tokenize
// @Accept       json
// @Produce      json
// @Param        request  body      types.TokenizeChatRequest  true  "Tokenize request"
// @Success      200      {object}  types.TokenizeResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      501      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /tokenize_chat [post]
func (s *server) tokenizeChat(w http.ResponseWriter, r *http.Request) {
	var req types.TokenizeChatRequest
	raw, ok := s.decode(w, r, &req)
	if !ok {
		return
	}
	req.Raw = raw
	s.dispatch(w, r, func(ctx context.Context, b backend.Backend) (*backend.Response, error) {
		return b.TokenizeChat(ctx, &req, r)
	})
}

// detokenize godoc
// @Summary      Detokenize token ids
// @Tags         tokenize
// @Accept       json
// @Produce      json
// @Param        request  body      types.DetokenizeRequest  true  "Detokenize request"
// @Success      200      {object}  types.DetokenizeResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      501      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /detokenize [post]
func (s *server) detokenize(w http.ResponseWriter, r *http.Request) {
	var req types.DetokenizeRequest
	raw, ok := s.decode(w, r, &req)
	if !ok {
		return
	}
	req.Raw = raw
	s.dispatch(w, r, func(ctx context.Context, b backend.Backend) (*backend.Response, error) {
		return b.Detokenize(ctx, &req, r)
	})
}

// embeddings godoc
// @Summary      Create embeddings
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        request  body      types.EmbeddingRequest  true  "Embedding request"
// @Success      200      {object}  types.EmbeddingResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      501      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /v1/embeddings [post]
func (s *server) embeddings(w http.ResponseWriter, r *http.Request) {
	var req types.EmbeddingRequest
	raw, ok := s.decode(w, r, &req)
	if !ok {
		return
	}
	req.Raw = raw
	s.dispatch(w, r, func(ctx context.Context, b backend.Backend) (*backend.Response, error) {
		return b.Embedding(ctx, &req, r)
	})
}

// decode checks the content type, reads the size-limited body into v and
// validates it. It runs before admission, so malformed requests get 4xx in
// every lifecycle state. On failure the error response is already written.
func (s *server) decode(w http.ResponseWriter, r *http.Request, v validator) (json.RawMessage, bool) {
	// A missing Content-Type is read as JSON.
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if err := v.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return body, true
}

// dispatch admits the request, runs call and writes the backend response.
func (s *server) dispatch(w http.ResponseWriter, r *http.Request, call backendCall) {
	ctx, cancel := callContext(s.opts.BaseContext, r.Context(), s.opts.RequestTimeout)
	defer cancel()

	b, release, err := s.svc.Acquire(ctx)
	if err != nil {
		s.backpressure(err)
		s.fail(w, r, err)
		return
	}
	defer release()

	resp, err := call(ctx, b)
	if err != nil {
		// Client went away; nothing to write.
		if r.Context().Err() != nil {
			return
		}
		if s.opts.BaseContext.Err() != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "server shutting down")
			return
		}
		s.fail(w, r, err)
		return
	}
	s.write(w, r, resp)
}

func (s *server) backpressure(err error) {
	if s.opts.Metrics == nil {
		return
	}
	switch {
	case manager.IsTooBusy(err):
		s.opts.Metrics.IncBackpressure("too_busy")
	case manager.IsServiceUnavailable(err):
		s.opts.Metrics.IncBackpressure("not_ready")
	}
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		ev := s.opts.Logger.Warn().Err(err).Int("status", status).Str("path", r.URL.Path)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Msg("request failed")
	}
	writeJSONError(w, status, err.Error())
}

// write copies the backend response verbatim. Streams are flushed after
// every chunk so clients see tokens as they are produced.
func (s *server) write(w http.ResponseWriter, r *http.Request, resp *backend.Response) {
	if resp == nil {
		writeJSONError(w, http.StatusInternalServerError, "backend returned no response")
		return
	}
	h := w.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	ct := resp.ContentType
	if ct == "" {
		ct = "application/json"
	}
	h.Set("Content-Type", ct)
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	if resp.Stream == nil {
		w.WriteHeader(status)
		_, _ = w.Write(resp.Body)
		return
	}

	defer resp.Stream.Close()
	h.Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	rc := http.NewResponseController(w)
	_ = rc.Flush()
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			_ = rc.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && r.Context().Err() == nil {
				s.opts.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("stream interrupted")
			}
			return
		}
	}
}
