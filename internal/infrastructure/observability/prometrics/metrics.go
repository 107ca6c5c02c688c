// Package prometrics backs observability counters and histograms with Prometheus vectors.
package prometrics

import (
	"sync"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
)

type Registry interface {
	Counter(name, help string, labelKeys ...string) observability.Counter
	Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

// registry memoizes vectors by name so asking twice never double-registers.
type registry struct {
	reg       prometheus.Registerer
	namespace string
	subsystem string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New registers into reg, or the default registerer when reg is nil.
func New(reg prometheus.Registerer, namespace, subsystem string) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &registry{
		reg:        reg,
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

func (r *registry) Counter(name, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help,
		}, labelKeys)
		r.reg.MustRegister(vec)
		r.counters[name] = vec
	}
	return counter{vec}
}

func (r *registry) Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help, Buckets: buckets,
		}, labelKeys)
		r.reg.MustRegister(vec)
		r.histograms[name] = vec
	}
	return histogram{vec}
}

type counter struct{ vec *prometheus.CounterVec }

func (c counter) Add(d float64, labels ...observability.Label) { c.vec.With(promLabels(labels)).Add(d) }

// Bind resolves the child once; later Adds skip the label lookup.
func (c counter) Bind(labels ...observability.Label) observability.BoundCounter {
	return c.vec.With(promLabels(labels))
}

type histogram struct{ vec *prometheus.HistogramVec }

func (h histogram) Observe(v float64, labels ...observability.Label) {
	h.vec.With(promLabels(labels)).Observe(v)
}

func (h histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return h.vec.With(promLabels(labels))
}

func promLabels(ls []observability.Label) prometheus.Labels {
	out := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		out[l.Key] = l.Value
	}
	return out
}

type counterDef struct {
	key    observability.MetricKey
	help   string
	labels []string
}

type histogramDef struct {
	key    observability.MetricKey
	help   string
	labels []string
}

var counterDefs = []counterDef{
	{observability.MUsecaseRequests, "Use case invocations by outcome.", []string{"use_case", "outcome"}},
	{observability.MHTTPRequests, "HTTP requests served.", []string{"method", "route", "status"}},
	{observability.MExternalRequests, "Calls to the payment gateway and the exchange.", []string{"peer", "endpoint", "outcome"}},
	{observability.MExchangePublishFailed, "Events the exchange could not publish.", []string{"event"}},
	{observability.MExchangeDropped, "Events dropped for a slow or closed subscriber.", []string{"reason"}},
	{observability.MWebhookMalformed, "Webhook payloads acknowledged but not parseable.", []string{"reason"}},
	{observability.MSignalDropped, "Payment signals dropped after exhausting retries.", []string{"reason"}},
	{observability.MAmountMismatch, "Payment signals refused because the amount disagreed with the recorded payment.", nil},
}

var histogramDefs = []histogramDef{
	{observability.MUsecaseDuration, "Use case latency in seconds.", []string{"use_case"}},
	{observability.MHTTPRequestDuration, "HTTP request latency in seconds.", []string{"method", "route", "status"}},
	{observability.MExternalRequestDuration, "External call latency in seconds.", []string{"peer", "endpoint"}},
}

// Instruments registers every metric the pipeline records, keyed for the observability provider.
func Instruments(r Registry) (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram) {
	counters := make(map[observability.MetricKey]observability.Counter, len(counterDefs))
	for _, d := range counterDefs {
		counters[d.key] = r.Counter(string(d.key), d.help, d.labels...)
	}
	histograms := make(map[observability.MetricKey]observability.Histogram, len(histogramDefs))
	for _, d := range histogramDefs {
		histograms[d.key] = r.Histogram(string(d.key), d.help, prometheus.DefBuckets, d.labels...)
	}
	return counters, histograms
}
