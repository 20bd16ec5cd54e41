package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrLabelCountMismatch is returned when label values don't match the
	// metric's label names.
	ErrLabelCountMismatch = errors.New("label count mismatch")

	// ErrNegativeCounterValue is returned when a counter would decrease.
	ErrNegativeCounterValue = errors.New("counter cannot be decreased")

	// ErrDuplicateMetric is returned when a name is registered twice.
	ErrDuplicateMetric = errors.New("duplicate metric name")
)

// Type is the exposition type of a metric family.
type Type string

const (
	TypeCounter   Type = "counter"
	TypeGauge     Type = "gauge"
	TypeHistogram Type = "histogram"
)

// Sample is one exposed line.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Metric is a registered metric family.
type Metric interface {
	Name() string
	Help() string
	Type() Type
	Collect() []Sample
}

// atomicFloat is a float64 updated atomically.
type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) Add(delta float64) {
	for {
		old := f.bits.Load()
		if f.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+delta)) {
			return
		}
	}
}

// family holds the labelled series of one metric.
type family[S any] struct {
	name       string
	help       string
	labelNames []string
	newSeries  func() *S

	mu     sync.RWMutex
	series map[string]*labelled[S]
}

type labelled[S any] struct {
	labels map[string]string
	s      *S
}

func (f *family[S]) init(name, help string, labelNames []string, newSeries func() *S) {
	f.name = name
	f.help = help
	f.labelNames = append([]string(nil), labelNames...)
	f.newSeries = newSeries
	f.series = make(map[string]*labelled[S])
}

func (f *family[S]) Name() string { return f.name }
func (f *family[S]) Help() string { return f.help }

func (f *family[S]) with(values []string) (*S, error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s expects %d labels, got %d", ErrLabelCountMismatch, f.name, len(f.labelNames), len(values))
	}
	key := strings.Join(values, "\x00")

	f.mu.RLock()
	l, ok := f.series[key]
	f.mu.RUnlock()
	if ok {
		return l.s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.series[key]; ok {
		return l.s, nil
	}
	labels := make(map[string]string, len(values))
	for i, name := range f.labelNames {
		labels[name] = values[i]
	}
	l = &labelled[S]{labels: labels, s: f.newSeries()}
	f.series[key] = l
	return l.s, nil
}

// each visits series ordered by label values.
func (f *family[S]) each(fn func(labels map[string]string, s *S)) {
	f.mu.RLock()
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	series := make([]*labelled[S], 0, len(keys))
	for _, k := range keys {
		series = append(series, f.series[k])
	}
	f.mu.RUnlock()

	for _, l := range series {
		fn(l.labels, l.s)
	}
}

// Counter is a monotonically increasing metric.
type Counter struct {
	family[CounterSeries]
}

// CounterSeries is the counter for one label combination.
type CounterSeries struct{ v atomicFloat }

// Inc adds one.
func (c *CounterSeries) Inc() { c.v.Add(1) }

// Add adds delta, which must not be negative.
func (c *CounterSeries) Add(delta float64) error {
	if delta < 0 {
		return ErrNegativeCounterValue
	}
	c.v.Add(delta)
	return nil
}

func (*Counter) Type() Type { return TypeCounter }

// With returns the series for the label values.
func (c *Counter) With(values ...string) (*CounterSeries, error) { return c.with(values) }

// MustWith is With for label values known to be well formed.
func (c *Counter) MustWith(values ...string) *CounterSeries {
	s, err := c.with(values)
	if err != nil {
		panic(err)
	}
	return s
}

func (c *Counter) Collect() []Sample {
	var out []Sample
	c.each(func(labels map[string]string, s *CounterSeries) {
		out = append(out, Sample{Name: c.name, Labels: labels, Value: s.v.Load()})
	})
	return out
}

// Gauge is a metric that goes up and down.
type Gauge struct {
	family[GaugeSeries]
}

// GaugeSeries is the gauge for one label combination.
type GaugeSeries struct{ v atomicFloat }

func (g *GaugeSeries) Set(v float64)     { g.v.Store(v) }
func (g *GaugeSeries) Add(delta float64) { g.v.Add(delta) }
func (g *GaugeSeries) Inc()              { g.v.Add(1) }
func (g *GaugeSeries) Dec()              { g.v.Add(-1) }

func (*Gauge) Type() Type { return TypeGauge }

// With returns the series for the label values.
func (g *Gauge) With(values ...string) (*GaugeSeries, error) { return g.with(values) }

// MustWith is With for label values known to be well formed.
func (g *Gauge) MustWith(values ...string) *GaugeSeries {
	s, err := g.with(values)
	if err != nil {
		panic(err)
	}
	return s
}

func (g *Gauge) Collect() []Sample {
	var out []Sample
	g.each(func(labels map[string]string, s *GaugeSeries) {
		out = append(out, Sample{Name: g.name, Labels: labels, Value: s.v.Load()})
	})
	return out
}

// GaugeFunc is an unlabelled gauge whose value is read at collection time.
type GaugeFunc struct {
	name string
	help string
	fn   func() float64
}

func (g *GaugeFunc) Name() string { return g.name }
func (g *GaugeFunc) Help() string { return g.help }
func (*GaugeFunc) Type() Type     { return TypeGauge }

func (g *GaugeFunc) Collect() []Sample {
	return []Sample{{Name: g.name, Value: g.fn()}}
}

// Histogram tracks a distribution over cumulative buckets.
type Histogram struct {
	family[HistogramSeries]
	bounds []float64
}

// HistogramSeries is the histogram for one label combination.
type HistogramSeries struct {
	bounds []float64
	counts []atomic.Uint64
	sum    atomicFloat
	count  atomic.Uint64
}

// Observe records v.
func (h *HistogramSeries) Observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)
	h.counts[i].Add(1)
	h.sum.Add(v)
	h.count.Add(1)
}

func (*Histogram) Type() Type { return TypeHistogram }

// With returns the series for the label values.
func (h *Histogram) With(values ...string) (*HistogramSeries, error) { return h.with(values) }

// MustWith is With for label values known to be well formed.
func (h *Histogram) MustWith(values ...string) *HistogramSeries {
	s, err := h.with(values)
	if err != nil {
		panic(err)
	}
	return s
}

func (h *Histogram) Collect() []Sample {
	var out []Sample
	h.each(func(labels map[string]string, s *HistogramSeries) {
		var cumulative uint64
		for i := range s.counts {
			cumulative += s.counts[i].Load()
			le := "+Inf"
			if i < len(s.bounds) {
				le = formatFloat(s.bounds[i])
			}
			bucket := make(map[string]string, len(labels)+1)
			for k, v := range labels {
				bucket[k] = v
			}
			bucket["le"] = le
			out = append(out, Sample{Name: h.name + "_bucket", Labels: bucket, Value: float64(cumulative)})
		}
		out = append(out,
			Sample{Name: h.name + "_sum", Labels: labels, Value: s.sum.Load()},
			Sample{Name: h.name + "_count", Labels: labels, Value: float64(s.count.Load())},
		)
	})
	return out
}

// DefaultBuckets are latency buckets in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Registry holds metric families in registration order.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter registers a counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := &Counter{}
	c.init(name, help, labels, func() *CounterSeries { return &CounterSeries{} })
	r.mustRegister(c)
	return c
}

// NewGauge registers a gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := &Gauge{}
	g.init(name, help, labels, func() *GaugeSeries { return &GaugeSeries{} })
	r.mustRegister(g)
	return g
}

// NewGaugeFunc registers a gauge computed by fn on every collection.
func (r *Registry) NewGaugeFunc(name, help string, fn func() float64) *GaugeFunc {
	g := &GaugeFunc{name: name, help: help, fn: fn}
	r.mustRegister(g)
	return g
}

// NewHistogram registers a histogram. A +Inf bucket is always present and
// need not be listed.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	bounds := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		if !math.IsInf(b, 1) {
			bounds = append(bounds, b)
		}
	}
	sort.Float64s(bounds)
	h := &Histogram{bounds: bounds}
	h.init(name, help, labels, func() *HistogramSeries {
		return &HistogramSeries{bounds: bounds, counts: make([]atomic.Uint64, len(bounds)+1)}
	})
	r.mustRegister(h)
	return h
}

// Register adds a metric implemented outside this package.
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMetric, m.Name())
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
	return nil
}

// mustRegister panics on duplicates; two families with one name produce
// invalid exposition output.
func (r *Registry) mustRegister(m Metric) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// WriteText writes every family with at least one sample in the
// Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	r.mu.RLock()
	metrics := append([]Metric(nil), r.metrics...)
	r.mu.RUnlock()

	bw := bufio.NewWriter(w)
	for _, m := range metrics {
		samples := m.Collect()
		if len(samples) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(bw, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
		_, _ = fmt.Fprintf(bw, "# TYPE %s %s\n", m.Name(), m.Type())
		for _, s := range samples {
			bw.WriteString(s.Name)
			if len(s.Labels) > 0 {
				bw.WriteByte('{')
				bw.WriteString(formatLabels(s.Labels))
				bw.WriteByte('}')
			}
			bw.WriteByte(' ')
			bw.WriteString(formatFloat(s.Value))
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// Handler serves the registry for scraping.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = r.WriteText(w)
	})
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + `="` + escapeLabelValue(labels[k]) + `"`
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
)

func escapeHelp(s string) string       { return helpEscaper.Replace(s) }
func escapeLabelValue(s string) string { return labelEscaper.Replace(s) }
