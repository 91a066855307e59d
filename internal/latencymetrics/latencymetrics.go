// Package latencymetrics implements the runtime's latency observability
// surface (§4.5): per-stage HDR histograms over rolling windows, queue
// depth gauges, batch-size EMA, speculation acceptance rate, and a
// Prometheus text exporter.
package latencymetrics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

const (
	histogramMinUs           int64 = 1
	histogramMaxUs           int64 = 1_000_000
	histogramSignificantFigs int   = 3
)

var windowDurations = map[string]time.Duration{
	"1m":  1 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
}

// windowOrder fixes iteration/export order across the three windows.
var windowOrder = []string{"1m", "5m", "15m"}

// rotatingHistogram is a tumbling-window HDR histogram: once its window
// elapses, the next recorded value starts a fresh histogram. This trades
// true sliding-window precision for O(1) memory and matches the
// coarse-grained windows called for in §4.5 ("1/5/15 minute windows").
type rotatingHistogram struct {
	mu        sync.Mutex
	window    time.Duration
	hist      *hdrhistogram.Histogram
	resetAtMs int64
	nowUs     func() int64
}

func newRotatingHistogram(window time.Duration, nowUs func() int64) *rotatingHistogram {
	return &rotatingHistogram{
		window: window,
		hist:   hdrhistogram.New(histogramMinUs, histogramMaxUs, histogramSignificantFigs),
		nowUs:  nowUs,
	}
}

func (r *rotatingHistogram) record(valueUs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowUs()
	if r.resetAtMs != 0 && now >= r.resetAtMs {
		r.hist = hdrhistogram.New(histogramMinUs, histogramMaxUs, histogramSignificantFigs)
		r.resetAtMs = 0
	}
	if r.resetAtMs == 0 {
		r.resetAtMs = now + r.window.Microseconds()
	}
	if valueUs < histogramMinUs {
		valueUs = histogramMinUs
	}
	if valueUs > histogramMaxUs {
		valueUs = histogramMaxUs
	}
	_ = r.hist.RecordValue(valueUs)
}

func (r *rotatingHistogram) valueAtQuantile(q float64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hist.ValueAtQuantile(q)
}

func (r *rotatingHistogram) mean() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hist.Mean()
}

func (r *rotatingHistogram) count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hist.TotalCount()
}

// StageHistogram tracks one pipeline stage's latency across the three
// standard windows.
type StageHistogram struct {
	stage   string
	windows map[string]*rotatingHistogram
}

func newStageHistogram(stage string, nowUs func() int64) *StageHistogram {
	sh := &StageHistogram{stage: stage, windows: make(map[string]*rotatingHistogram, len(windowDurations))}
	for name, d := range windowDurations {
		sh.windows[name] = newRotatingHistogram(d, nowUs)
	}
	return sh
}

// RecordLatencyUs records one latency sample (microseconds) into every window.
func (sh *StageHistogram) RecordLatencyUs(us int64) {
	for _, w := range sh.windows {
		w.record(us)
	}
}

// Percentile returns the given quantile (e.g. 0.5, 0.99) in microseconds
// for the named window ("1m", "5m", "15m").
func (sh *StageHistogram) Percentile(window string, q float64) int64 {
	w, ok := sh.windows[window]
	if !ok {
		return 0
	}
	return w.valueAtQuantile(q * 100)
}

// Mean returns the mean latency in microseconds for the named window.
func (sh *StageHistogram) Mean(window string) float64 {
	w, ok := sh.windows[window]
	if !ok {
		return 0
	}
	return w.mean()
}

// Count returns the number of samples recorded in the named window.
func (sh *StageHistogram) Count(window string) int64 {
	w, ok := sh.windows[window]
	if !ok {
		return 0
	}
	return w.count()
}

// ema is a minimal exponential moving average accumulator, used for
// batch-size tracking (§4.5).
type ema struct {
	mu     sync.Mutex
	alpha  float64
	value  float64
	hasAny bool
}

func newEMA(alpha float64) *ema { return &ema{alpha: alpha} }

func (e *ema) observe(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasAny {
		e.value = v
		e.hasAny = true
		return
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
}

func (e *ema) get() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// rateCounter tracks accepted/total counts for a ratio metric such as
// speculation acceptance rate.
type rateCounter struct {
	mu       sync.Mutex
	accepted int64
	total    int64
}

func (r *rateCounter) observe(accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if accepted {
		r.accepted++
	}
}

func (r *rateCounter) ratio() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total == 0 {
		return 0
	}
	return float64(r.accepted) / float64(r.total)
}

// Registry is the process-wide latency-metrics collector: per-stage
// histograms, queue-depth gauges, batch-size EMA, and speculation
// acceptance rate, all exportable as Prometheus text (§4.5).
type Registry struct {
	mu     sync.RWMutex
	nowUs  func() int64
	stages map[string]*StageHistogram

	queueDepthsMu    sync.Mutex
	queueDepthValues map[string]int64

	batchSizeEMA         *ema
	speculationAcceptRat *rateCounter
	totalInputs          int64
	totalInputsMu        sync.Mutex
}

// NewRegistry creates a latency-metrics registry. nowUs supplies the
// current time in microseconds (injected so tests can control window
// rotation deterministically).
func NewRegistry(nowUs func() int64) *Registry {
	if nowUs == nil {
		nowUs = func() int64 { return time.Now().UnixMicro() }
	}
	return &Registry{
		nowUs:                nowUs,
		stages:               make(map[string]*StageHistogram),
		queueDepthValues:     make(map[string]int64),
		batchSizeEMA:         newEMA(0.2),
		speculationAcceptRat: &rateCounter{},
	}
}

func (r *Registry) stage(name string) *StageHistogram {
	r.mu.RLock()
	sh, ok := r.stages[name]
	r.mu.RUnlock()
	if ok {
		return sh
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sh, ok = r.stages[name]; ok {
		return sh
	}
	sh = newStageHistogram(name, r.nowUs)
	r.stages[name] = sh
	return sh
}

// RecordStageLatencyUs records one node-processing latency sample.
func (r *Registry) RecordStageLatencyUs(stage string, us int64) {
	r.stage(stage).RecordLatencyUs(us)
}

// SetQueueDepth records the current depth of a bounded edge queue.
func (r *Registry) SetQueueDepth(edgeName string, depth int) {
	r.queueDepthsMu.Lock()
	defer r.queueDepthsMu.Unlock()
	r.queueDepthValues[edgeName] = int64(depth)
}

// RecordBatchSize feeds one batch-size observation into the EMA.
func (r *Registry) RecordBatchSize(size int) {
	r.batchSizeEMA.observe(float64(size))
}

// BatchSizeEMA returns the current EMA of observed batch sizes.
func (r *Registry) BatchSizeEMA() float64 { return r.batchSizeEMA.get() }

// RecordSpeculationOutcome feeds one VAD-gate speculation resolution into
// the acceptance-rate counter.
func (r *Registry) RecordSpeculationOutcome(accepted bool) {
	r.speculationAcceptRat.observe(accepted)
}

// SpeculationAcceptanceRate returns accepted/total speculations observed
// so far.
func (r *Registry) SpeculationAcceptanceRate() float64 { return r.speculationAcceptRat.ratio() }

// RecordInput increments the total-inputs counter.
func (r *Registry) RecordInput() {
	r.totalInputsMu.Lock()
	r.totalInputs++
	r.totalInputsMu.Unlock()
}

// TotalInputs returns the total number of inputs recorded.
func (r *Registry) TotalInputs() int64 {
	r.totalInputsMu.Lock()
	defer r.totalInputsMu.Unlock()
	return r.totalInputs
}

// StageNames returns the set of stages with at least one recorded sample,
// for export iteration.
func (r *Registry) StageNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	return names
}

// ExportPrometheus renders the registry as Prometheus text exposition
// format (§4.5). It is hand-rolled rather than built on
// client_golang's collector registry because these metrics are windowed
// snapshots computed on demand, not process-lifetime counters/gauges.
func (r *Registry) ExportPrometheus() string {
	var b strings.Builder

	b.WriteString("# HELP runtime_stage_latency_microseconds Per-stage processing latency.\n")
	b.WriteString("# TYPE runtime_stage_latency_microseconds summary\n")
	for _, stage := range r.StageNames() {
		sh := r.stage(stage)
		for _, w := range windowOrder {
			fmt.Fprintf(&b, "runtime_stage_latency_microseconds{stage=%q,window=%q,quantile=\"0.5\"} %d\n",
				stage, w, sh.Percentile(w, 0.5))
			fmt.Fprintf(&b, "runtime_stage_latency_microseconds{stage=%q,window=%q,quantile=\"0.99\"} %d\n",
				stage, w, sh.Percentile(w, 0.99))
			fmt.Fprintf(&b, "runtime_stage_latency_microseconds_count{stage=%q,window=%q} %d\n",
				stage, w, sh.Count(w))
		}
	}

	b.WriteString("# HELP runtime_queue_depth Current depth of a bounded edge queue.\n")
	b.WriteString("# TYPE runtime_queue_depth gauge\n")
	r.queueDepthsMu.Lock()
	for edge, depth := range r.queueDepthValues {
		fmt.Fprintf(&b, "runtime_queue_depth{edge=%q} %d\n", edge, depth)
	}
	r.queueDepthsMu.Unlock()

	b.WriteString("# HELP runtime_batch_size_ema Exponential moving average of observed batch sizes.\n")
	b.WriteString("# TYPE runtime_batch_size_ema gauge\n")
	fmt.Fprintf(&b, "runtime_batch_size_ema %f\n", r.BatchSizeEMA())

	b.WriteString("# HELP runtime_speculation_acceptance_rate Fraction of speculative segments committed rather than cancelled.\n")
	b.WriteString("# TYPE runtime_speculation_acceptance_rate gauge\n")
	fmt.Fprintf(&b, "runtime_speculation_acceptance_rate %f\n", r.SpeculationAcceptanceRate())

	b.WriteString("# HELP runtime_total_inputs_total Total number of inputs accepted by the runtime.\n")
	b.WriteString("# TYPE runtime_total_inputs_total counter\n")
	fmt.Fprintf(&b, "runtime_total_inputs_total %d\n", r.TotalInputs())

	return b.String()
}
