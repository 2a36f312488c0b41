// Package metrics holds the process-wide instrumentation spec §10 (AMBIENT
// STACK) calls for: Prometheus counters/gauges for request-level behavior,
// plus an HdrHistogram for latency distributions too fine-grained for a
// Prometheus histogram's fixed buckets.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the engine's metrics so tests can construct an isolated
// instance instead of sharing the process-wide Default().
type Registry struct {
	Registerer prometheus.Registerer

	WritesTotal        *prometheus.CounterVec
	ReadsTotal         *prometheus.CounterVec
	FlushesTotal       *prometheus.CounterVec
	CompactionsTotal   *prometheus.CounterVec
	CompactionFailures *prometheus.CounterVec
	MemtableBytes      *prometheus.GaugeVec

	mu        sync.Mutex
	writeHist *hdrhistogram.Histogram
	readHist  *hdrhistogram.Histogram
}

// NewRegistry builds a fresh Registry registered against reg (use
// prometheus.NewRegistry() in tests to avoid collisions with Default()).
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Registerer: reg,
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_writes_total",
			Help: "Number of write batches applied, by table.",
		}, []string{"table"}),
		ReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_reads_total",
			Help: "Number of scans served, by table.",
		}, []string{"table"}),
		FlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_flushes_total",
			Help: "Number of memtable flushes, by table.",
		}, []string{"table"}),
		CompactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_compactions_total",
			Help: "Number of successful compactions, by table.",
		}, []string{"table"}),
		CompactionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_compaction_failures_total",
			Help: "Number of failed compaction attempts, by table.",
		}, []string{"table"}),
		MemtableBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_memtable_bytes",
			Help: "Approximate memtable byte usage, by table.",
		}, []string{"table"}),
		writeHist: hdrhistogram.New(1, 10_000_000, 3),
		readHist:  hdrhistogram.New(1, 10_000_000, 3),
	}
	reg.MustRegister(r.WritesTotal, r.ReadsTotal, r.FlushesTotal, r.CompactionsTotal, r.CompactionFailures, r.MemtableBytes)
	return r
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide Registry, registered against the
// default Prometheus registerer.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultReg
}

// ObserveWriteLatency records a write batch's latency in the HdrHistogram.
func (r *Registry) ObserveWriteLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.writeHist.RecordValue(d.Microseconds())
}

// ObserveReadLatency records a scan's latency in the HdrHistogram.
func (r *Registry) ObserveReadLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.readHist.RecordValue(d.Microseconds())
}

// WriteLatencyPercentile returns the write-latency histogram's
// p-th percentile, in microseconds.
func (r *Registry) WriteLatencyPercentile(p float64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeHist.ValueAtQuantile(p)
}

// ReadLatencyPercentile returns the read-latency histogram's p-th
// percentile, in microseconds.
func (r *Registry) ReadLatencyPercentile(p float64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readHist.ValueAtQuantile(p)
}
