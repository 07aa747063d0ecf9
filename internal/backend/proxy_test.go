package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"lightserve/internal/config"
	"lightserve/pkg/types"
)

func newOpenAI(t *testing.T, url string, params map[string]any) Backend {
	t.Helper()
	if params == nil {
		params = map[string]any{}
	}
	params[ParamUpstreamURL] = url
	b, err := NewOpenAI(config.Descriptor{Kind: "openai", Model: "m1", Params: params}, Options{})
	if err != nil {
		t.Fatalf("new openai: %v", err)
	}
	return b
}

func TestOpenAI_RequiresUpstream(t *testing.T) {
	if _, err := NewOpenAI(config.Descriptor{Model: "m"}, Options{}); err == nil {
		t.Fatalf("expected error without upstream_url")
	}
}

func TestOpenAI_ForwardsBodyVerbatim(t *testing.T) {
	var gotBody, gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			w.WriteHeader(http.StatusOK)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotBody, gotAuth, gotPath = string(b), r.Header.Get("Authorization"), r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "1")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, `{"error":"short and stout"}`)
	}))
	defer srv.Close()

	b := newOpenAI(t, srv.URL+"/", map[string]any{ParamAPIKey: "sk-test"})
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	raw := json.RawMessage(`{"model":"m1","messages":[{"role":"user","content":"hi"}],"extra":true}`)
	resp, err := b.ChatCompletion(context.Background(), &types.ChatCompletionRequest{Raw: raw}, nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if gotPath != "/v1/chat/completions" || gotBody != string(raw) || gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected upstream request path=%s body=%s auth=%s", gotPath, gotBody, gotAuth)
	}
	if resp.Status != http.StatusTeapot || string(resp.Body) != `{"error":"short and stout"}` {
		t.Fatalf("response not verbatim: %d %s", resp.Status, resp.Body)
	}
	if resp.ContentType != "application/json" || resp.Header.Get("X-Upstream") != "1" || resp.Header.Get("Content-Length") != "" {
		t.Fatalf("unexpected headers: %v", resp.Header)
	}
}

func TestOpenAI_TokenizeRoutes(t *testing.T) {
	paths := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()
	b := newOpenAI(t, srv.URL, nil)
	ctx := context.Background()
	_, _ = b.TokenizeCompletion(ctx, &types.TokenizeCompletionRequest{Prompt: "x"}, nil)
	_, _ = b.TokenizeChat(ctx, &types.TokenizeChatRequest{Raw: json.RawMessage(`{}`)}, nil)
	_, _ = b.Detokenize(ctx, &types.DetokenizeRequest{Tokens: []int{1}}, nil)
	_, _ = b.Embedding(ctx, &types.EmbeddingRequest{Raw: json.RawMessage(`{}`)}, nil)
	want := []string{"/tokenize", "/tokenize", "/detokenize", "/v1/embeddings"}
	for _, w := range want {
		if got := <-paths; got != w {
			t.Fatalf("expected %s, got %s", w, got)
		}
	}
}

func TestOpenAI_StreamPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"x\":1}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()
	b := newOpenAI(t, srv.URL, nil)
	resp, err := b.Completion(context.Background(), &types.CompletionRequest{Raw: json.RawMessage(`{"stream":true}`)}, nil)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if resp.Stream == nil {
		t.Fatalf("expected stream")
	}
	defer resp.Stream.Close()
	body, _ := io.ReadAll(resp.Stream)
	if string(body) != "data: {\"x\":1}\n\ndata: [DONE]\n\n" {
		t.Fatalf("stream altered: %q", body)
	}
}

func TestOpenAI_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()
	b := newOpenAI(t, srv.URL, map[string]any{ParamBreakerFailures: 2, ParamBreakerTimeout: "1h"})
	req := &types.CompletionRequest{Raw: json.RawMessage(`{}`)}
	for i := 0; i < 2; i++ {
		resp, err := b.Completion(context.Background(), req, nil)
		if err != nil || resp.Status != http.StatusInternalServerError {
			t.Fatalf("call %d: upstream 500 should pass through, got %v %v", i, resp, err)
		}
	}
	_, err := b.Completion(context.Background(), req, nil)
	if StatusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected open breaker 503, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("open breaker must not reach upstream, hits=%d", hits.Load())
	}
}

func TestOpenAI_TransportErrorIsBadGateway(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	b := newOpenAI(t, url, nil)
	_, err := b.Completion(context.Background(), &types.CompletionRequest{Raw: json.RawMessage(`{}`)}, nil)
	if StatusOf(err) != http.StatusBadGateway {
		t.Fatalf("expected 502, got %v", err)
	}
}

func TestOpenAI_StartWaitsForHealth(t *testing.T) {
	var ready atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	b := newOpenAI(t, srv.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := b.Start(ctx); err == nil {
		t.Fatalf("expected start to time out while unhealthy")
	}
	ready.Store(true)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}
