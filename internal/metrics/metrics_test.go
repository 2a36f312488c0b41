package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestObserveLatencyPercentiles(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())

	r.ObserveWriteLatency(10 * time.Millisecond)
	r.ObserveWriteLatency(20 * time.Millisecond)
	r.ObserveReadLatency(5 * time.Millisecond)

	require.Greater(t, r.WriteLatencyPercentile(50), int64(0))
	require.Greater(t, r.ReadLatencyPercentile(50), int64(0))
}

func TestDefaultIsSingleton(t *testing.T) {
	require.Same(t, Default(), Default())
}
