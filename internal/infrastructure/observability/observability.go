// Package observability binds the tracer, logger and metric instruments into one provider.
package observability

import (
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
)

// Provider hands out the process wide instruments. Keys that were never registered resolve to
// no-op instruments so callers can look them up unconditionally.
type Provider struct {
	tracer      observability.Tracer
	logger      observability.Logger
	instruments instruments
}

var _ observability.Observability = (*Provider)(nil)

type instruments struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (in instruments) Counter(name observability.MetricKey) observability.Counter {
	if c := in.counters[name]; c != nil {
		return c
	}
	return observability.NopCounter()
}

func (in instruments) Histogram(name observability.MetricKey) observability.Histogram {
	if h := in.histograms[name]; h != nil {
		return h
	}
	return observability.NopHistogram()
}

func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) *Provider {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	p := &Provider{
		tracer: tracer,
		logger: logger,
		instruments: instruments{
			counters:   make(map[observability.MetricKey]observability.Counter, len(counters)),
			histograms: make(map[observability.MetricKey]observability.Histogram, len(histograms)),
		},
	}
	for k, c := range counters {
		if c != nil {
			p.instruments.counters[k] = c
		}
	}
	for k, h := range histograms {
		if h != nil {
			p.instruments.histograms[k] = h
		}
	}
	return p
}

func (p *Provider) Tracer() observability.Tracer   { return p.tracer }
func (p *Provider) Logger() observability.Logger   { return p.logger }
func (p *Provider) Metrics() observability.Metrics { return p.instruments }
