package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"

	"lightserve/internal/common/fsutil"
)

// Mode is the aggregation strategy, fixed at construction.
type Mode string

const (
	ModeSingle       Mode = "single"
	ModeMultiprocess Mode = "multiprocess"
)

// FileExt is the suffix of per-worker exposition files.
const FileExt = ".prom"

// Snapshot is one rendering of the metrics in the text exposition format.
type Snapshot struct {
	Body        []byte
	ContentType string
	Mode        Mode
	GeneratedAt time.Time
}

// Options configures an Aggregator.
type Options struct {
	// MultiprocDir selects multiprocess mode when non-empty.
	MultiprocDir string
	// Local is gathered next to the merged worker files in multiprocess
	// mode. Its families describe this process only and are never summed;
	// a name that also appears in the worker files is left out.
	Local  prometheus.Gatherer
	Logger zerolog.Logger
}

// Aggregator renders the metrics exposed at /metrics. In single mode it
// gathers the process registry; in multiprocess mode it merges every worker
// file in the shared directory. It never touches backend state.
type Aggregator struct {
	mode     Mode
	dir      string
	gatherer prometheus.Gatherer
	local    prometheus.Gatherer
	log      zerolog.Logger
	format   expfmt.Format
}

// NewAggregator picks the strategy once from opts.MultiprocDir. g is the
// registry used in single mode; nil selects prometheus.DefaultGatherer.
// Gauges found in worker files are summed, so only gauges whose sum is
// meaningful (in-flight counts) belong there; per-process values go to
// opts.Local.
func NewAggregator(g prometheus.Gatherer, opts Options) *Aggregator {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	a := &Aggregator{
		mode:     ModeSingle,
		gatherer: g,
		local:    opts.Local,
		log:      opts.Logger.With().Str("component", "metrics").Logger(),
		format:   expfmt.NewFormat(expfmt.TypeTextPlain),
	}
	if dir := strings.TrimSpace(opts.MultiprocDir); dir != "" {
		a.mode = ModeMultiprocess
		a.dir = dir
	}
	return a
}

// Mode reports the selected strategy.
func (a *Aggregator) Mode() Mode { return a.mode }

// Dir returns the multiprocess directory, empty in single mode.
func (a *Aggregator) Dir() string { return a.dir }

// Gather implements prometheus.Gatherer for the selected strategy.
func (a *Aggregator) Gather() ([]*dto.MetricFamily, error) {
	if a.mode == ModeSingle {
		return a.gatherer.Gather()
	}
	merged, err := a.gatherDir()
	if err != nil || a.local == nil {
		return merged, err
	}
	return a.withLocal(merged)
}

// withLocal appends this process's own families to the merged set.
func (a *Aggregator) withLocal(merged []*dto.MetricFamily) ([]*dto.MetricFamily, error) {
	own, err := a.local.Gather()
	seen := make(map[string]bool, len(merged))
	for _, mf := range merged {
		seen[mf.GetName()] = true
	}
	for _, mf := range own {
		if seen[mf.GetName()] {
			a.log.Warn().Str("metric", mf.GetName()).Msg("local metric shadowed by worker files")
			continue
		}
		merged = append(merged, mf)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].GetName() < merged[j].GetName() })
	return merged, err
}

// Snapshot gathers and encodes the metrics.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	mfs, err := a.Gather()
	if err != nil && len(mfs) == 0 {
		return Snapshot{}, err
	}
	if err != nil {
		// Registry gather errors are partial; serve what was collected.
		a.log.Warn().Err(err).Msg("partial metrics gather")
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, a.format)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return Snapshot{}, fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return Snapshot{
		Body:        buf.Bytes(),
		ContentType: string(a.format),
		Mode:        a.mode,
		GeneratedAt: time.Now(),
	}, nil
}

// Handler serves Snapshot. It answers in every lifecycle state.
func (a *Aggregator) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := a.Snapshot(r.Context())
		if err != nil {
			a.log.Error().Err(err).Msg("metrics snapshot failed")
			http.Error(w, "metrics unavailable: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", snap.ContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(snap.Body)
	})
}

// gatherDir parses every worker file and merges the families. Unreadable or
// malformed files are skipped with a warning so one crashed worker cannot
// take /metrics down.
func (a *Aggregator) gatherDir() ([]*dto.MetricFamily, error) {
	files, err := fsutil.FilesWithExt(a.dir, FileExt)
	if err != nil {
		return nil, fmt.Errorf("multiprocess dir: %w", err)
	}
	var sets []map[string]*dto.MetricFamily
	for _, path := range files {
		fams, err := parseFile(path)
		if err != nil {
			a.log.Warn().Err(err).Str("file", path).Msg("skipping metrics file")
			continue
		}
		sets = append(sets, fams)
	}
	return Merge(sets, a.log), nil
}

func parseFile(path string) (map[string]*dto.MetricFamily, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p := expfmt.NewTextParser(model.UTF8Validation)
	return p.TextToMetricFamilies(f)
}

// Merge combines families from several workers. Samples with the same name
// and label set are summed: counters, gauges and untyped values directly,
// histograms per bucket plus count and sum, summaries by count and sum with
// quantiles dropped. A family whose type disagrees with the first one seen
// is dropped from the later source. Output is sorted by name, then labels.
func Merge(sets []map[string]*dto.MetricFamily, log zerolog.Logger) []*dto.MetricFamily {
	type famAcc struct {
		mf      *dto.MetricFamily
		samples map[string]*dto.Metric
	}
	acc := map[string]*famAcc{}
	for _, set := range sets {
		for name, src := range set {
			fa := acc[name]
			if fa == nil {
				fa = &famAcc{
					mf: &dto.MetricFamily{
						Name: strPtr(name),
						Help: strPtr(src.GetHelp()),
						Type: src.Type,
					},
					samples: map[string]*dto.Metric{},
				}
				acc[name] = fa
			} else if fa.mf.GetType() != src.GetType() {
				log.Warn().Str("metric", name).Str("want", fa.mf.GetType().String()).
					Str("got", src.GetType().String()).Msg("metric type mismatch across workers")
				continue
			}
			for _, m := range src.GetMetric() {
				key := labelKey(m.GetLabel())
				dst := fa.samples[key]
				if dst == nil {
					dst = &dto.Metric{Label: m.GetLabel()}
					fa.samples[key] = dst
				}
				mergeSample(fa.mf.GetType(), dst, m)
			}
		}
	}

	names := make([]string, 0, len(acc))
	for n := range acc {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*dto.MetricFamily, 0, len(names))
	for _, n := range names {
		fa := acc[n]
		keys := make([]string, 0, len(fa.samples))
		for k := range fa.samples {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fa.mf.Metric = append(fa.mf.Metric, fa.samples[k])
		}
		out = append(out, fa.mf)
	}
	return out
}

func mergeSample(t dto.MetricType, dst, src *dto.Metric) {
	switch t {
	case dto.MetricType_COUNTER:
		if dst.Counter == nil {
			dst.Counter = &dto.Counter{Value: floatPtr(0)}
		}
		*dst.Counter.Value += src.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		if dst.Gauge == nil {
			dst.Gauge = &dto.Gauge{Value: floatPtr(0)}
		}
		*dst.Gauge.Value += src.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
		h := src.GetHistogram()
		if dst.Histogram == nil {
			dst.Histogram = &dto.Histogram{SampleCount: uint64Ptr(0), SampleSum: floatPtr(0)}
		}
		*dst.Histogram.SampleCount += h.GetSampleCount()
		*dst.Histogram.SampleSum += h.GetSampleSum()
		dst.Histogram.Bucket = mergeBuckets(dst.Histogram.Bucket, h.GetBucket())
	case dto.MetricType_SUMMARY:
		s := src.GetSummary()
		if dst.Summary == nil {
			dst.Summary = &dto.Summary{SampleCount: uint64Ptr(0), SampleSum: floatPtr(0)}
		}
		*dst.Summary.SampleCount += s.GetSampleCount()
		*dst.Summary.SampleSum += s.GetSampleSum()
	default:
		if dst.Untyped == nil {
			dst.Untyped = &dto.Untyped{Value: floatPtr(0)}
		}
		*dst.Untyped.Value += src.GetUntyped().GetValue()
	}
}

// mergeBuckets adds cumulative counts per upper bound. Bounds present in only
// one side are kept, so differing bucket layouts still merge.
func mergeBuckets(dst, src []*dto.Bucket) []*dto.Bucket {
	byBound := make(map[float64]uint64, len(dst)+len(src))
	for _, b := range dst {
		byBound[b.GetUpperBound()] += b.GetCumulativeCount()
	}
	for _, b := range src {
		byBound[b.GetUpperBound()] += b.GetCumulativeCount()
	}
	bounds := make([]float64, 0, len(byBound))
	for ub := range byBound {
		bounds = append(bounds, ub)
	}
	sort.Float64s(bounds)
	out := make([]*dto.Bucket, len(bounds))
	for i, ub := range bounds {
		out[i] = &dto.Bucket{UpperBound: floatPtr(ub), CumulativeCount: uint64Ptr(byBound[ub])}
	}
	return out
}

func labelKey(pairs []*dto.LabelPair) string {
	kv := make([]string, len(pairs))
	for i, p := range pairs {
		kv[i] = p.GetName() + "\xff" + p.GetValue()
	}
	sort.Strings(kv)
	return strings.Join(kv, "\xfe")
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func uint64Ptr(u uint64) *uint64  { return &u }
