package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pair's Prometheus instruments. A nil *Metrics disables
// collection; every method is nil-safe.
type Metrics struct {
	operations      *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
	swapSteps       prometheus.Histogram
	tickCrossings   prometheus.Counter
	activeLiquidity prometheus.Gauge
	currentTick     prometheus.Gauge
}

// NewMetrics creates and registers the pair metrics on the given registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clmm_operations_total",
			Help: "Committed pair operations",
		}, []string{"op"}),

		operationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clmm_operation_errors_total",
			Help: "Pair operations aborted by an error",
		}, []string{"op"}),

		swapSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clmm_swap_steps",
			Help:    "Swap-loop iterations per swap",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),

		tickCrossings: factory.NewCounter(prometheus.CounterOpts{
			Name: "clmm_tick_crossings_total",
			Help: "Initialized ticks crossed by swaps",
		}),

		activeLiquidity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clmm_active_liquidity",
			Help: "In-range liquidity after the last commit",
		}),

		currentTick: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clmm_current_tick",
			Help: "Current tick after the last commit",
		}),
	}
}

func (m *Metrics) observeOp(op string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op).Inc()
}

func (m *Metrics) observeError(op string) {
	if m == nil {
		return
	}
	m.operationErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) observeSwap(steps, crossings int) {
	if m == nil {
		return
	}
	m.swapSteps.Observe(float64(steps))
	m.tickCrossings.Add(float64(crossings))
}

func (m *Metrics) observeState(liquidity float64, tick int) {
	if m == nil {
		return
	}
	m.activeLiquidity.Set(liquidity)
	m.currentTick.Set(float64(tick))
}
