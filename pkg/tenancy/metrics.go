package tenancy

import (
	"github.com/prometheus/client_golang/prometheus"

	"tenantdb/pkg/db"
)

// Metrics counts switches and lifecycle operations.
type Metrics struct {
	switches *prometheus.CounterVec
	failures *prometheus.CounterVec
	ops      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		switches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "switches_total",
			Help:      "Tenant switches by the transition they performed.",
		}, []string{"move"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "switch_failures_total",
			Help:      "Switches that failed and fell back to the default tenant.",
		}, []string{"op"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "lifecycle_operations_total",
			Help:      "Create and drop operations by result.",
		}, []string{"op", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.switches, m.failures, m.ops)
	}
	return m
}

// RegisterRegistry exposes the number of open connection handles.
func RegisterRegistry(reg prometheus.Registerer, r *db.Registry) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tenancy",
		Name:      "connection_handles",
		Help:      "Connection handles currently held by the registry.",
	}, func() float64 { return float64(r.Len()) }))
}

func (m *Metrics) switched(move Move) {
	m.switches.WithLabelValues(move.String()).Inc()
}

func (m *Metrics) failed(op string) {
	m.failures.WithLabelValues(op).Inc()
}

func (m *Metrics) lifecycle(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ops.WithLabelValues(op, result).Inc()
}
