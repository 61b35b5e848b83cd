// Package metrics defines the counters, gauges and histograms the storage
// engine exposes: a small interface the rest of the module codes against,
// with a real Prometheus-backed implementation and a no-op default so tests
// and CLI tools don't need a registry to construct a *tokendb.DB.
package metrics

import "time"

// CountMeter is a monotonically increasing counter.
type CountMeter interface {
	Add(n int64)
}

// CountVecMeter is a counter partitioned by a fixed label set.
type CountVecMeter interface {
	AddWithLabel(n int64, labels ...string)
}

// GaugeMeter is a value that can go up or down.
type GaugeMeter interface {
	Gauge(n int64)
}

// GaugeVecMeter is a gauge partitioned by a fixed label set.
type GaugeVecMeter interface {
	AddWithLabel(n int64, labels ...string)
	SetWithLabel(n int64, labels ...string)
}

// HistogramMeter observes a distribution of values (e.g. operation
// durations in milliseconds).
type HistogramMeter interface {
	Observe(n int64)
}

// HistogramVecMeter is a histogram partitioned by a fixed label set.
type HistogramVecMeter interface {
	ObserveWithLabel(n int64, labels ...string)
}

// Metrics is the registry the storage engine pulls named instruments from.
// A name is created lazily on first use and reused on subsequent calls.
type Metrics interface {
	GetOrCreateCountMeter(name string, labels ...string) CountMeter
	GetOrCreateCountVecMeter(name string, labelKeys ...string) CountVecMeter
	GetOrCreateGaugeMeter(name string, labels ...string) GaugeMeter
	GetOrCreateGaugeVecMeter(name string, labelKeys ...string) GaugeVecMeter
	GetOrCreateHistogramMeter(name string, labels ...string) HistogramMeter
	GetOrCreateHistogramVecMeter(name string, labelKeys ...string) HistogramVecMeter
}

// Lazy memoizes the instrument build returns for the most recent Metrics it
// was resolved against, so call sites can hold a package-level *Lazy[T]
// next to a var-init Metrics that may not be wired up yet at package init
// time.
type Lazy[T any] struct {
	build func(Metrics) T
	m     Metrics
	val   T
	done  bool
}

// LazyLoad returns a Lazy instrument built by build on first Get.
func LazyLoad[T any](build func(Metrics) T) *Lazy[T] {
	return &Lazy[T]{build: build}
}

// Get resolves the instrument against m. It builds on the first call and
// again whenever m differs from the Metrics of the previous call.
func (l *Lazy[T]) Get(m Metrics) T {
	if !l.done || l.m != m {
		l.val = l.build(m)
		l.m = m
		l.done = true
	}
	return l.val
}

// LazyLoadCounter is a convenience Lazy[CountMeter] constructor.
func LazyLoadCounter(name string, labels ...string) *Lazy[CountMeter] {
	return LazyLoad(func(m Metrics) CountMeter { return m.GetOrCreateCountMeter(name, labels...) })
}

// LazyLoadCounterVec is a convenience Lazy[CountVecMeter] constructor.
func LazyLoadCounterVec(name string, labelKeys ...string) *Lazy[CountVecMeter] {
	return LazyLoad(func(m Metrics) CountVecMeter { return m.GetOrCreateCountVecMeter(name, labelKeys...) })
}

// LazyLoadGauge is a convenience Lazy[GaugeMeter] constructor.
func LazyLoadGauge(name string, labels ...string) *Lazy[GaugeMeter] {
	return LazyLoad(func(m Metrics) GaugeMeter { return m.GetOrCreateGaugeMeter(name, labels...) })
}

// LazyLoadHistogram is a convenience Lazy[HistogramMeter] constructor.
func LazyLoadHistogram(name string, labels ...string) *Lazy[HistogramMeter] {
	return LazyLoad(func(m Metrics) HistogramMeter { return m.GetOrCreateHistogramMeter(name, labels...) })
}

// Since returns the elapsed time since start in milliseconds, the unit this
// package's latency histograms are defined in.
func Since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
