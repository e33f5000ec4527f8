package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sapj"

// Recorder implements service.Metrics on Prometheus collectors
type Recorder struct {
	gatherer prometheus.Gatherer
	updates  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder registers the invoice collectors on a fresh registry.
// Go runtime and process collectors are included so /metrics is useful on its own.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newRecorder(reg, reg)
}

func newRecorder(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	r := &Recorder{
		gatherer: gatherer,
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invoice",
			Name:      "updates_total",
			Help:      "Invoice update attempts by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "invoice",
			Name:      "update_duration_seconds",
			Help:      "Time spent applying invoice updates, transaction included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	reg.MustRegister(r.updates, r.duration)
	return r
}

// ObserveInvoiceUpdate records one update attempt
func (r *Recorder) ObserveInvoiceUpdate(outcome string, duration time.Duration) {
	r.updates.WithLabelValues(outcome).Inc()
	r.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
