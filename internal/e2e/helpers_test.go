package e2e

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"lightserve/internal/config"
	"lightserve/internal/gateway"
)

// runtimeFor returns a complete runtime section for kind serving model.
func runtimeFor(kind, model string) map[string]any {
	rt := map[string]any{}
	for _, k := range config.OverlayKeys {
		rt[k] = nil
	}
	rt[config.KeyBackend] = kind
	rt[config.KeyModelName] = model
	rt[config.KeyEnablePrefixCaching] = true
	rt[config.KeyMaxNumSeqs] = 8
	return rt
}

func baseConfig(kind, model string, params map[string]any) config.Config {
	return config.Config{
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: config.Duration(2 * time.Second),
		DrainTimeout:    config.Duration(time.Second),
		StartTimeout:    config.Duration(5 * time.Second),
		Runtime:         runtimeFor(kind, model),
		ModelConfig:     params,
	}
}

// startGateway runs a gateway until the test ends and returns its base URL
// once it reports ready.
func startGateway(t *testing.T, cfg config.Config) (string, *gateway.Gateway) {
	t.Helper()
	g, err := gateway.New(cfg, gateway.Options{})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("gateway did not stop")
		}
	})
	select {
	case <-g.Listening():
	case err := <-done:
		t.Fatalf("gateway exited: %v", err)
	}
	base := "http://" + g.Addr()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if resp, _ := httpGet(t, base+"/readyz"); resp.StatusCode == http.StatusOK {
			return base, g
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("gateway not ready: %s", g.Manager().State())
	return "", nil
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPost(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	out, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, out
}
