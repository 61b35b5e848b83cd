package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tokendb"

// Prometheus builds a Metrics backed by the given registerer, lazily
// registering one collector per distinct name the first time it's asked
// for.
func Prometheus(reg prometheus.Registerer) Metrics {
	return &promMetrics{reg: reg}
}

type promMetrics struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	counterVec map[string]*prometheus.CounterVec
	gauges     map[string]prometheus.Gauge
	gaugeVec   map[string]*prometheus.GaugeVec
	hists      map[string]prometheus.Histogram
	histVec    map[string]*prometheus.HistogramVec
}

func (p *promMetrics) GetOrCreateCountMeter(name string, labels ...string) CountMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counters == nil {
		p.counters = map[string]prometheus.Counter{}
	}
	c, ok := p.counters[name]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			ConstLabels: constLabels(labels),
		})
		p.reg.MustRegister(c)
		p.counters[name] = c
	}
	return promCounter{c}
}

func (p *promMetrics) GetOrCreateCountVecMeter(name string, labelKeys ...string) CountVecMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counterVec == nil {
		p.counterVec = map[string]*prometheus.CounterVec{}
	}
	v, ok := p.counterVec[name]
	if !ok {
		v = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
		}, labelKeys)
		p.reg.MustRegister(v)
		p.counterVec[name] = v
	}
	return promCounterVec{v}
}

func (p *promMetrics) GetOrCreateGaugeMeter(name string, labels ...string) GaugeMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gauges == nil {
		p.gauges = map[string]prometheus.Gauge{}
	}
	g, ok := p.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			ConstLabels: constLabels(labels),
		})
		p.reg.MustRegister(g)
		p.gauges[name] = g
	}
	return promGauge{g}
}

func (p *promMetrics) GetOrCreateGaugeVecMeter(name string, labelKeys ...string) GaugeVecMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gaugeVec == nil {
		p.gaugeVec = map[string]*prometheus.GaugeVec{}
	}
	v, ok := p.gaugeVec[name]
	if !ok {
		v = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
		}, labelKeys)
		p.reg.MustRegister(v)
		p.gaugeVec[name] = v
	}
	return promGaugeVec{v}
}

func (p *promMetrics) GetOrCreateHistogramMeter(name string, labels ...string) HistogramMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hists == nil {
		p.hists = map[string]prometheus.Histogram{}
	}
	h, ok := p.hists[name]
	if !ok {
		h = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        name,
			ConstLabels: constLabels(labels),
		})
		p.reg.MustRegister(h)
		p.hists[name] = h
	}
	return promHistogram{h}
}

func (p *promMetrics) GetOrCreateHistogramVecMeter(name string, labelKeys ...string) HistogramVecMeter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.histVec == nil {
		p.histVec = map[string]*prometheus.HistogramVec{}
	}
	v, ok := p.histVec[name]
	if !ok {
		v = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
		}, labelKeys)
		p.reg.MustRegister(v)
		p.histVec[name] = v
	}
	return promHistogramVec{v}
}

// constLabels turns a flat "k1", "v1", "k2", "v2", ... slice into a label
// map for the fixed (non-vector) instrument constructors.
func constLabels(kv []string) prometheus.Labels {
	if len(kv) == 0 {
		return nil
	}
	labels := make(prometheus.Labels, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		labels[kv[i]] = kv[i+1]
	}
	return labels
}

type promCounter struct{ c prometheus.Counter }

func (p promCounter) Add(n int64) { p.c.Add(float64(n)) }

type promCounterVec struct{ v *prometheus.CounterVec }

func (p promCounterVec) AddWithLabel(n int64, labels ...string) {
	p.v.WithLabelValues(labels...).Add(float64(n))
}

type promGauge struct{ g prometheus.Gauge }

func (p promGauge) Gauge(n int64) { p.g.Set(float64(n)) }

type promGaugeVec struct{ v *prometheus.GaugeVec }

func (p promGaugeVec) AddWithLabel(n int64, labels ...string) {
	p.v.WithLabelValues(labels...).Add(float64(n))
}

func (p promGaugeVec) SetWithLabel(n int64, labels ...string) {
	p.v.WithLabelValues(labels...).Set(float64(n))
}

type promHistogram struct{ h prometheus.Histogram }

func (p promHistogram) Observe(n int64) { p.h.Observe(float64(n)) }

type promHistogramVec struct{ v *prometheus.HistogramVec }

func (p promHistogramVec) ObserveWithLabel(n int64, labels ...string) {
	p.v.WithLabelValues(labels...).Observe(float64(n))
}
