package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"lightserve/internal/backend"
	"lightserve/internal/config"
	"lightserve/internal/manager"
	"lightserve/internal/metrics"
	"lightserve/pkg/types"
)

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth_PerState(t *testing.T) {
	cases := []struct {
		state manager.State
		want  int
	}{
		{manager.StateUninitialized, http.StatusOK},
		{manager.StateStarting, http.StatusOK},
		{manager.StateReady, http.StatusOK},
		{manager.StateShuttingDown, http.StatusOK},
		{manager.StateStopped, http.StatusServiceUnavailable},
	}
	for _, c := range cases {
		r := NewMux(&mockService{state: c.state}, Options{})
		if w := get(r, "/health"); w.Code != c.want {
			t.Fatalf("state=%s status=%d want %d", c.state, w.Code, c.want)
		}
	}
}

func TestReadyz(t *testing.T) {
	r := NewMux(&mockService{state: manager.StateReady}, Options{})
	if w := get(r, "/readyz"); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	r := NewMux(&mockService{state: manager.StateStarting}, Options{})
	w := get(r, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "starting") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{state: manager.StateReady, status: types.StatusResponse{State: "ready", Inflight: 3}}
	w := get(NewMux(svc, Options{}), "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Inflight != 3 || body.State != "ready" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestModels(t *testing.T) {
	w := get(NewMux(newEchoService(t), Options{}), "/v1/models")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var list types.ModelList
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("json: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 1 || list.Data[0].ID != "m1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	w = get(NewMux(&mockService{state: manager.StateStarting}, Options{}), "/v1/models")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready status=%d", w.Code)
	}
}

func TestChatCompletion_Echo(t *testing.T) {
	svc := newEchoService(t)
	r := NewMux(svc, Options{})
	w := post(r, "/v1/chat/completions", `{"model":"m1","messages":[{"role":"user","content":"hello there"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Text() != "hello there" {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}
	if svc.acquired.Load() != 1 || svc.released.Load() != 1 {
		t.Fatalf("acquire/release mismatch: %d/%d", svc.acquired.Load(), svc.released.Load())
	}
}

func TestCompletion_Stream(t *testing.T) {
	r := NewMux(newEchoService(t), Options{})
	w := post(r, "/v1/completions", `{"model":"m1","prompt":"one two three","stream":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type=%s", ct)
	}
	if !strings.HasSuffix(w.Body.String(), "data: [DONE]\n\n") {
		t.Fatalf("stream not terminated: %q", w.Body.String())
	}
	if !w.Flushed {
		t.Fatalf("expected flushes while streaming")
	}
}

func TestTokenizeRoutes(t *testing.T) {
	r := NewMux(newEchoService(t), Options{})
	w := post(r, "/tokenize_completion", `{"prompt":"Hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("tokenize_completion status=%d body=%s", w.Code, w.Body.String())
	}
	var tok types.TokenizeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tok); err != nil {
		t.Fatalf("json: %v", err)
	}
	if tok.Count != len(tok.Tokens) || tok.Count == 0 {
		t.Fatalf("unexpected tokens: %+v", tok)
	}

	w = post(r, "/tokenize_chat", `{"messages":[{"role":"user","content":"Hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("tokenize_chat status=%d body=%s", w.Code, w.Body.String())
	}

	w = post(r, "/detokenize", `{"tokens":[72,105]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("detokenize status=%d body=%s", w.Code, w.Body.String())
	}
	var de types.DetokenizeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &de); err != nil || de.Prompt != "Hi" {
		t.Fatalf("detokenize: %v %+v", err, de)
	}

	w = post(r, "/v1/embeddings", `{"model":"m1","input":["a","b"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("embeddings status=%d body=%s", w.Code, w.Body.String())
	}
	var emb types.EmbeddingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &emb); err != nil || len(emb.Data) != 2 {
		t.Fatalf("embeddings: %v %s", err, w.Body.String())
	}
}

func TestRequestValidation(t *testing.T) {
	r := NewMux(newEchoService(t), Options{MaxBodyBytes: 64})

	req := httptest.NewRequest(http.MethodPost, "/v1/completions", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("text/plain status=%d", w.Code)
	}

	if w := post(r, "/v1/completions", `{"prompt":`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", w.Code)
	}
	if w := post(r, "/v1/chat/completions", `{"messages":[]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty messages status=%d", w.Code)
	}
	big := `{"prompt":"` + strings.Repeat("x", 200) + `"}`
	if w := post(r, "/v1/completions", big); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversize status=%d", w.Code)
	}
	if w := post(r, "/v1/embeddings", `{"input":"a","encoding_format":"hex"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad encoding status=%d", w.Code)
	}
}

func TestCompletion_MissingContentTypeReadAsJSON(t *testing.T) {
	r := NewMux(newEchoService(t), Options{})
	req := httptest.NewRequest(http.MethodPost, "/v1/completions", strings.NewReader(`{"prompt":"x"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestStopAcceptsStringOrList(t *testing.T) {
	r := NewMux(newEchoService(t), Options{})
	for _, body := range []string{
		`{"prompt":"x","stop":"\n"}`,
		`{"prompt":"x","stop":["\n","END"]}`,
		`{"prompt":"x","stop":null}`,
	} {
		if w := post(r, "/v1/completions", body); w.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%s", body, w.Code, w.Body.String())
		}
	}
	chat := `{"messages":[{"role":"user","content":"hi"}],"stop":"\n"}`
	if w := post(r, "/v1/chat/completions", chat); w.Code != http.StatusOK {
		t.Fatalf("chat: status=%d body=%s", w.Code, w.Body.String())
	}
	if w := post(r, "/v1/completions", `{"prompt":"x","stop":7}`); w.Code != http.StatusBadRequest {
		t.Fatalf("numeric stop: status=%d", w.Code)
	}
}

func TestErrorResponseShape(t *testing.T) {
	r := NewMux(newEchoService(t), Options{})
	w := post(r, "/v1/completions", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != http.StatusBadRequest || er.Error == "" {
		t.Fatalf("unexpected error body: %+v", er)
	}
}

func TestSecurityHeader(t *testing.T) {
	w := get(NewMux(&mockService{state: manager.StateReady}, Options{}), "/health")
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}

func TestCORS(t *testing.T) {
	r := NewMux(&mockService{state: manager.StateReady}, Options{
		CORS: config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://ui.example"}},
	})
	req := httptest.NewRequest(http.MethodOptions, "/v1/completions", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ui.example" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestMetricsEndpointUsesHandler(t *testing.T) {
	for _, st := range manager.States {
		called := false
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			_, _ = w.Write([]byte("# metrics\n"))
		})
		w := get(NewMux(&mockService{state: st}, Options{MetricsHandler: h}), "/metrics")
		if w.Code != http.StatusOK || !called {
			t.Fatalf("%s: status=%d called=%v", st, w.Code, called)
		}
	}
}

func TestInferenceRejectedWhenNotReady(t *testing.T) {
	for _, st := range []manager.State{manager.StateStarting, manager.StateShuttingDown, manager.StateStopped} {
		stub := &stubBackend{}
		svc := &mockService{state: st, b: stub, acquireErr: manager.ErrServiceUnavailable}
		w := post(NewMux(svc, Options{}), "/v1/completions", `{"prompt":"x"}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: status=%d", st, w.Code)
		}
		if stub.gotReq != nil {
			t.Fatalf("%s: backend called", st)
		}
	}
}

func TestBackpressureCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg, nil)
	svc := &mockService{state: manager.StateStarting, acquireErr: manager.ErrServiceUnavailable}
	r := NewMux(svc, Options{Metrics: m})
	if w := post(r, "/v1/completions", `{"prompt":"x"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	got, err := testutil.GatherAndCount(reg, "lightserve_http_backpressure_total")
	if err != nil || got != 1 {
		t.Fatalf("backpressure series=%d err=%v", got, err)
	}
}

func TestCallContext_BaseCancelStopsBackend(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	stub := &stubBackend{block: true}
	svc := &mockService{state: manager.StateReady, b: stub}
	r := NewMux(svc, Options{BaseContext: base})

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- post(r, "/v1/completions", `{"prompt":"x"}`) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case w := <-done:
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not return after base context cancel")
	}
	if svc.released.Load() != 1 {
		t.Fatalf("slot not released")
	}
}

func TestRequestTimeoutMapsTo504(t *testing.T) {
	svc := &mockService{state: manager.StateReady, b: &stubBackend{block: true}}
	r := NewMux(svc, Options{RequestTimeout: 20 * time.Millisecond})
	if w := post(r, "/v1/chat/completions", `{"messages":[{"role":"user","content":"x"}]}`); w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestBackendResponseCopiedVerbatim(t *testing.T) {
	stub := &stubBackend{resp: &backend.Response{
		Status:      http.StatusAccepted,
		ContentType: "application/x-custom",
		Header:      http.Header{"X-Upstream": []string{"1"}},
		Body:        []byte("raw-bytes"),
	}}
	r := NewMux(&mockService{state: manager.StateReady, b: stub}, Options{})
	w := post(r, "/v1/embeddings", `{"input":"a"}`)
	if w.Code != http.StatusAccepted || w.Body.String() != "raw-bytes" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "application/x-custom" || w.Header().Get("X-Upstream") != "1" {
		t.Fatalf("headers=%v", w.Header())
	}
	if stub.gotReq == nil || stub.gotReq.URL.Path != "/v1/embeddings" {
		t.Fatalf("raw request not passed to backend")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{backend.Unsupported("detokenize"), http.StatusNotImplemented},
		{backend.NewStatusError(http.StatusBadGateway, "upstream"), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{manager.ErrTooBusy, http.StatusTooManyRequests},
		{manager.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Fatalf("%v -> %d want %d", c.err, got, c.want)
		}
	}
}
