// metrics.go - Metrics collection for the transaction pipeline
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter   MetricType = "counter"
	Gauge     MetricType = "gauge"
	Histogram MetricType = "histogram"
)

// histogramWindow is how many samples a histogram keeps.
const histogramWindow = 1000

// Metric represents a single metric
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Collector manages metrics collection. A nil *Collector discards everything.
type Collector struct {
	mu         sync.RWMutex
	metrics    map[string]*Metric
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		metrics:    make(map[string]*Metric),
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter increments a counter metric
func (mc *Collector) IncrementCounter(name string, labels map[string]string) {
	if mc == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := makeKey(name, labels)
	mc.counters[key]++
	mc.updateMetric(key, name, Counter, float64(mc.counters[key]), labels)
}

// SetGauge sets a gauge metric value
func (mc *Collector) SetGauge(name string, value float64, labels map[string]string) {
	if mc == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := makeKey(name, labels)
	mc.gauges[key] = value
	mc.updateMetric(key, name, Gauge, value, labels)
}

// RecordHistogram records a value in a histogram
func (mc *Collector) RecordHistogram(name string, value float64, labels map[string]string) {
	if mc == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := makeKey(name, labels)
	h := append(mc.histograms[key], value)
	if len(h) > histogramWindow {
		h = h[len(h)-histogramWindow:]
	}
	mc.histograms[key] = h
	mc.updateMetric(key, name, Histogram, value, labels)
}

// Counter returns the current value of a counter.
func (mc *Collector) Counter(name string, labels map[string]string) int64 {
	if mc == nil {
		return 0
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[makeKey(name, labels)]
}

// GetMetric retrieves a metric by name and labels
func (mc *Collector) GetMetric(name string, labels map[string]string) *Metric {
	if mc == nil {
		return nil
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if m, ok := mc.metrics[makeKey(name, labels)]; ok {
		out := *m
		return &out
	}
	return nil
}

// GetAllMetrics returns all collected metrics sorted by key.
func (mc *Collector) GetAllMetrics() []*Metric {
	if mc == nil {
		return nil
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	keys := make([]string, 0, len(mc.metrics))
	for k := range mc.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Metric, 0, len(keys))
	for _, k := range keys {
		m := *mc.metrics[k]
		out = append(out, &m)
	}
	return out
}

// HistogramSummary aggregates the retained samples of a histogram.
type HistogramSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
}

// Summary is a point-in-time view of every metric.
type Summary struct {
	Counters   map[string]int64            `json:"counters"`
	Gauges     map[string]float64          `json:"gauges"`
	Histograms map[string]HistogramSummary `json:"histograms"`
}

// GetMetricsSummary returns a summary of all metrics
func (mc *Collector) GetMetricsSummary() Summary {
	s := Summary{
		Counters:   make(map[string]int64),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string]HistogramSummary),
	}
	if mc == nil {
		return s
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	for k, v := range mc.counters {
		s.Counters[k] = v
	}
	for k, v := range mc.gauges {
		s.Gauges[k] = v
	}
	for k, values := range mc.histograms {
		if len(values) == 0 {
			continue
		}
		h := HistogramSummary{Count: len(values), Min: values[0], Max: values[0]}
		for _, v := range values {
			if v < h.Min {
				h.Min = v
			}
			if v > h.Max {
				h.Max = v
			}
			h.Sum += v
		}
		h.Avg = h.Sum / float64(h.Count)
		s.Histograms[k] = h
	}
	return s
}

// Reset resets all metrics
func (mc *Collector) Reset() {
	if mc == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics = make(map[string]*Metric)
	mc.counters = make(map[string]int64)
	mc.gauges = make(map[string]float64)
	mc.histograms = make(map[string][]float64)
}

// makeKey builds name{k1=v1,k2=v2} with labels sorted by key.
func makeKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

func (mc *Collector) updateMetric(key, name string, metricType MetricType, value float64, labels map[string]string) {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	mc.metrics[key] = &Metric{
		Name:      name,
		Type:      metricType,
		Value:     value,
		Labels:    copied,
		Timestamp: time.Now(),
	}
}

// Predefined metric names
const (
	MetricOperationCount      = "operation_count"
	MetricStateDuration       = "state_duration_seconds"
	MetricProofGenerationTime = "proof_generation_time"
	MetricAdjusterStrategy    = "adjuster_strategy"
	MetricErrorCount          = "error_count"
	MetricQuarantinedNotes    = "quarantined_notes"
	MetricLedgerBalance       = "ledger_balance"
)

// Convenience methods for common metrics

// RecordOperation counts a finished operation by kind and outcome (success or the error type).
func (mc *Collector) RecordOperation(kind, outcome string) {
	mc.IncrementCounter(MetricOperationCount, map[string]string{"kind": kind, "outcome": outcome})
}

func (mc *Collector) RecordStateDuration(kind, state string, d time.Duration) {
	mc.RecordHistogram(MetricStateDuration, d.Seconds(), map[string]string{"kind": kind, "state": state})
}

func (mc *Collector) RecordProofGeneration(kind string, d time.Duration) {
	mc.RecordHistogram(MetricProofGenerationTime, d.Seconds(), map[string]string{"kind": kind})
}

func (mc *Collector) RecordAdjustment(strategy string, perturbed bool) {
	p := "false"
	if perturbed {
		p = "true"
	}
	mc.IncrementCounter(MetricAdjusterStrategy, map[string]string{"strategy": strategy, "perturbed": p})
}

func (mc *Collector) RecordError(errorType string) {
	mc.IncrementCounter(MetricErrorCount, map[string]string{"type": errorType})
}

func (mc *Collector) RecordQuarantined(count int) {
	mc.SetGauge(MetricQuarantinedNotes, float64(count), nil)
}

func (mc *Collector) RecordBalance(asset string, balance float64) {
	mc.SetGauge(MetricLedgerBalance, balance, map[string]string{"asset": asset})
}
