package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorker(t *testing.T, dir, name string, requests float64, inflight float64, observations []float64) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "worker_requests_total", Help: "requests"}, []string{"path"})
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "worker_inflight", Help: "inflight"})
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "worker_latency_seconds", Help: "latency", Buckets: []float64{0.1, 1}})
	reg.MustRegister(c, g, h)
	c.WithLabelValues("/v1/completions").Add(requests)
	g.Set(inflight)
	for _, o := range observations {
		h.Observe(o)
	}
	require.NoError(t, prometheus.WriteToTextfile(filepath.Join(dir, name+FileExt), reg))
}

func TestAggregator_SingleMode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "single_total", Help: "x"})
	reg.MustRegister(c)
	c.Add(3)

	a := NewAggregator(reg, Options{})
	assert.Equal(t, ModeSingle, a.Mode())
	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, snap.Mode)
	assert.Contains(t, string(snap.Body), "single_total 3")
	assert.True(t, strings.HasPrefix(snap.ContentType, "text/plain"))
}

func TestAggregator_MultiprocessSumsWorkers(t *testing.T) {
	dir := t.TempDir()
	writeWorker(t, dir, "101", 2, 1, []float64{0.05, 0.5})
	writeWorker(t, dir, "202", 5, 3, []float64{2})

	a := NewAggregator(prometheus.NewRegistry(), Options{MultiprocDir: dir})
	require.Equal(t, ModeMultiprocess, a.Mode())

	mfs, err := a.Gather()
	require.NoError(t, err)
	byName := map[string]int{}
	for i, mf := range mfs {
		byName[mf.GetName()] = i
	}

	reqs := mfs[byName["worker_requests_total"]]
	require.Len(t, reqs.GetMetric(), 1)
	assert.Equal(t, 7.0, reqs.GetMetric()[0].GetCounter().GetValue())

	gauge := mfs[byName["worker_inflight"]]
	assert.Equal(t, 4.0, gauge.GetMetric()[0].GetGauge().GetValue())

	hist := mfs[byName["worker_latency_seconds"]].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(3), hist.GetSampleCount())
	assert.InDelta(t, 2.55, hist.GetSampleSum(), 1e-9)
	counts := map[float64]uint64{}
	for _, b := range hist.GetBucket() {
		counts[b.GetUpperBound()] = b.GetCumulativeCount()
	}
	assert.Equal(t, uint64(1), counts[0.1])
	assert.Equal(t, uint64(2), counts[1])

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(snap.Body), `worker_requests_total{path="/v1/completions"} 7`)
}

func TestAggregator_SkipsMalformedAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	writeWorker(t, dir, "1", 1, 0, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.prom"), []byte("this is { not valid\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("worker_requests_total 100\n"), 0o644))

	a := NewAggregator(nil, Options{MultiprocDir: dir, Logger: zerolog.Nop()})
	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(snap.Body), `worker_requests_total{path="/v1/completions"} 1`)
}

func TestAggregator_EmptyDirYieldsEmptyBody(t *testing.T) {
	a := NewAggregator(nil, Options{MultiprocDir: t.TempDir()})
	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Body)
}

func TestAggregator_MissingDirFails(t *testing.T) {
	a := NewAggregator(nil, Options{MultiprocDir: filepath.Join(t.TempDir(), "nope")})
	_, err := a.Snapshot(context.Background())
	require.Error(t, err)

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAggregator_Handler(t *testing.T) {
	dir := t.TempDir()
	writeWorker(t, dir, "1", 4, 0, nil)
	srv := httptest.NewServer(NewAggregator(nil, Options{MultiprocDir: dir}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, string(body), "worker_requests_total")
}

func TestMerge_TypeMismatchKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.prom"),
		[]byte("# TYPE thing counter\nthing 2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.prom"),
		[]byte("# TYPE thing gauge\nthing 9\n"), 0o644))

	mfs, err := NewAggregator(nil, Options{MultiprocDir: dir}).Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, 2.0, mfs[0].GetMetric()[0].GetCounter().GetValue())
}

func TestAggregator_LocalFamiliesNotSummed(t *testing.T) {
	dir := t.TempDir()
	writeWorker(t, dir, "w1", 1, 1, nil)
	writeWorker(t, dir, "w2", 2, 2, nil)

	local := prometheus.NewRegistry()
	start := prometheus.NewGauge(prometheus.GaugeOpts{Name: "local_start_time_seconds", Help: "x"})
	clash := prometheus.NewGauge(prometheus.GaugeOpts{Name: "worker_inflight", Help: "x"})
	local.MustRegister(start, clash)
	start.Set(1700000000)
	clash.Set(99)

	snap, err := NewAggregator(nil, Options{MultiprocDir: dir, Local: local}).Snapshot(context.Background())
	require.NoError(t, err)
	body := string(snap.Body)
	assert.Contains(t, body, "local_start_time_seconds 1.7e+09")
	assert.Contains(t, body, "worker_inflight 3")
	assert.NotContains(t, body, "worker_inflight 99")
	assert.Less(t, strings.Index(body, "# TYPE local_start_time_seconds"), strings.Index(body, "# TYPE worker_inflight"))
}
