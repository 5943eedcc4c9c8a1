package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	mc := NewCollector()

	mc.RecordOperation("swap", "success")
	mc.RecordOperation("swap", "success")
	mc.RecordOperation("swap", "ProofTimeoutError")
	assert.Equal(t, int64(2), mc.Counter(MetricOperationCount, map[string]string{"outcome": "success", "kind": "swap"}))

	mc.RecordProofGeneration("swap", 2*time.Second)
	mc.RecordProofGeneration("swap", 4*time.Second)
	s := mc.GetMetricsSummary()
	h := s.Histograms["proof_generation_time{kind=swap}"]
	assert.Equal(t, 2, h.Count)
	assert.InDelta(t, 3.0, h.Avg, 1e-9)
	assert.InDelta(t, 2.0, h.Min, 1e-9)

	mc.RecordBalance("token0", 1000)
	m := mc.GetMetric(MetricLedgerBalance, map[string]string{"asset": "token0"})
	require.NotNil(t, m)
	assert.Equal(t, Gauge, m.Type)
	assert.Equal(t, 1000.0, m.Value)

	all := mc.GetAllMetrics()
	assert.Len(t, all, 4)

	mc.Reset()
	assert.Empty(t, mc.GetAllMetrics())
}

func TestNilCollector(t *testing.T) {
	var mc *Collector
	assert.NotPanics(t, func() {
		mc.RecordOperation("deposit", "success")
		mc.RecordAdjustment("direct", true)
		assert.Zero(t, mc.Counter(MetricOperationCount, nil))
		assert.Empty(t, mc.GetMetricsSummary().Counters)
	})
}

func TestCollectorConcurrent(t *testing.T) {
	mc := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mc.RecordError("SyncError")
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), mc.Counter(MetricErrorCount, map[string]string{"type": "SyncError"}))
}

func TestHistogramWindow(t *testing.T) {
	mc := NewCollector()
	for i := 0; i < histogramWindow+10; i++ {
		mc.RecordHistogram("h", float64(i), nil)
	}
	h := mc.GetMetricsSummary().Histograms["h"]
	assert.Equal(t, histogramWindow, h.Count)
	assert.Equal(t, 10.0, h.Min)
}

func TestHealthChecker(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterComponent("tree", func(context.Context) error { return nil })
	hc.RegisterComponent("chain", func(context.Context) error { return errors.New("connection refused") })

	h := hc.CheckHealth(context.Background())
	assert.Equal(t, Unhealthy, h.OverallStatus)
	require.Len(t, h.Components, 2)
	assert.Equal(t, "chain", h.Components[0].Name)
	assert.Equal(t, "connection refused", h.Components[0].Message)
	assert.Equal(t, Healthy, h.Components[1].Status)
	assert.Equal(t, "test", h.Version)

	ok := NewHealthChecker("test")
	ok.RegisterComponent("prover", func(context.Context) error { return nil })
	assert.Equal(t, Healthy, ok.CheckHealth(context.Background()).OverallStatus)
}
