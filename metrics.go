package mysql

import (
	"github.com/prometheus/client_golang/prometheus"
)

// poolMetrics tracks pool occupancy and acquisition outcomes for
// scraping (SPEC_FULL.md, "Domain stack", pool observability).
// Counters are process-local; a pool does not register them
// globally, so multiple pools in one process don't collide.
type poolMetrics struct {
	acquired prometheus.Counter
	retired  prometheus.Counter
}

func newPoolMetrics() *poolMetrics {
	return &poolMetrics{
		acquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mysql_pool_acquired_total",
			Help: "Total sessions handed out by the pool's acquisition loop.",
		}),
		retired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mysql_pool_retired_total",
			Help: "Total idle sessions retired by validation or the recycling policy.",
		}),
	}
}

// Collectors exposes the pool's metrics for a caller to register
// with their own prometheus.Registerer.
func (p *Pool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.metrics.acquired, p.metrics.retired}
}
