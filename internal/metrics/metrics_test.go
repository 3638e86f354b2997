package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheus(reg, "test")

	c.CacheLookup(CacheHit)
	c.CacheLookup(CacheMiss)
	c.CacheLookup(CacheMiss)
	c.UsageFetch(FetchOK, 10*time.Millisecond)
	c.UsageFetch(FetchTimeout, time.Second)
	c.Excluded("incomplete_usage")
	c.OverCapacity()
	c.Selection("ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues(CacheHit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues(CacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.usageFetches.WithLabelValues(FetchTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.excluded.WithLabelValues("incomplete_usage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.overCapacity))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.selections.WithLabelValues("ok")))
}

func TestNopMetrics(t *testing.T) {
	var c Collector = NewNop()
	assert.NotPanics(t, func() {
		c.CacheLookup(CacheHit)
		c.UsageFetch(FetchError, time.Millisecond)
		c.Excluded("x")
		c.OverCapacity()
		c.Selection("error")
	})
}
