package metrics

// NoOp is the zero-configuration Metrics implementation: every instrument
// it hands out discards whatever is recorded. Used as the default so
// tokendb.Open never requires a caller to wire up Prometheus first.
var NoOp Metrics = noopMetrics{}

type noopMetrics struct{}

func (noopMetrics) GetOrCreateCountMeter(string, ...string) CountMeter { return noopCounter{} }
func (noopMetrics) GetOrCreateCountVecMeter(string, ...string) CountVecMeter { return noopCounter{} }
func (noopMetrics) GetOrCreateGaugeMeter(string, ...string) GaugeMeter { return noopGauge{} }
func (noopMetrics) GetOrCreateGaugeVecMeter(string, ...string) GaugeVecMeter { return noopGauge{} }
func (noopMetrics) GetOrCreateHistogramMeter(string, ...string) HistogramMeter { return noopHist{} }
func (noopMetrics) GetOrCreateHistogramVecMeter(string, ...string) HistogramVecMeter {
	return noopHist{}
}

type noopCounter struct{}

func (noopCounter) Add(int64) {}
func (noopCounter) AddWithLabel(int64, ...string) {}

type noopGauge struct{}

func (noopGauge) Gauge(int64) {}
func (noopGauge) AddWithLabel(int64, ...string) {}
func (noopGauge) SetWithLabel(int64, ...string) {}

type noopHist struct{}

func (noopHist) Observe(int64) {}
func (noopHist) ObserveWithLabel(int64, ...string) {}
