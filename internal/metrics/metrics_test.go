package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")

	m.IncSamples("success")
	m.IncSamples("success")
	m.IncSamples("failed_to_download")
	m.IncFetchRetries()
	m.AddFetchedBytes(512)
	m.FetchStarted()
	m.FetchStarted()
	m.FetchFinished()
	m.ObserveShard(true, 3)
	m.ObserveShard(false, 0)

	if got := testutil.ToFloat64(m.SamplesProcessed.WithLabelValues("success")); got != 2 {
		t.Errorf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchedBytes); got != 512 {
		t.Errorf("expected 512 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.InFlightFetches); got != 1 {
		t.Errorf("expected 1 in-flight fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.ShardsFailed); got != 1 {
		t.Errorf("expected 1 failed shard, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.IncSamples("success")
	m.IncFetchRetries()
	m.AddFetchedBytes(1)
	m.FetchStarted()
	m.FetchFinished()
	m.ObserveShard(true, 1)
}
