package observability

import (
	"testing"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCounter struct{ total float64 }

func (c *countingCounter) Add(delta float64, _ ...observability.Label) { c.total += delta }

func (c *countingCounter) Bind(...observability.Label) observability.BoundCounter { return boundCount{c} }

type boundCount struct{ c *countingCounter }

func (b boundCount) Add(delta float64) { b.c.total += delta }

func TestProviderResolvesRegisteredInstruments(t *testing.T) {
	dropped := &countingCounter{}
	p := New(nil, nil,
		map[observability.MetricKey]observability.Counter{
			observability.MExchangeDropped: dropped,
			observability.MSignalDropped:   nil,
		},
		nil,
	)
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Logger())

	p.Metrics().Counter(observability.MExchangeDropped).Add(2)
	assert.Equal(t, 2.0, dropped.total)

	// unregistered and nil keys fall back to no-ops
	assert.NotPanics(t, func() {
		p.Metrics().Counter(observability.MSignalDropped).Add(1)
		p.Metrics().Counter("unknown_total").Bind(observability.L("a", "b")).Add(1)
		p.Metrics().Histogram(observability.MUsecaseDuration).Observe(0.5)
	})
}
