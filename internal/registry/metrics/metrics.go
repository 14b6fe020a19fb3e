package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry module.
type Metrics struct {
	RegistriesCreated   prometheus.Counter
	AccessChecksDenied  prometheus.Counter
	AuditEntriesWritten prometheus.Counter
	CheckAccessDuration prometheus.Histogram
}

// New creates a Metrics instance with all registry module metrics registered.
func New() *Metrics {
	return &Metrics{
		RegistriesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caseregistry_registries_created_total",
			Help: "Total number of data registries created",
		}),
		AccessChecksDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caseregistry_access_checks_denied_total",
			Help: "Total number of registry access checks that were denied",
		}),
		AuditEntriesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caseregistry_audit_entries_written_total",
			Help: "Total number of audit log entries written",
		}),
		CheckAccessDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "caseregistry_check_access_duration_seconds",
			Help:    "Duration of CheckAccess operations (report/search critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementRegistriesCreated records a successful registry creation.
func (m *Metrics) IncrementRegistriesCreated() {
	m.RegistriesCreated.Inc()
}

// IncrementAccessDenied records a denied access check.
func (m *Metrics) IncrementAccessDenied() {
	m.AccessChecksDenied.Inc()
}

// IncrementAuditEntries records an audit row write.
func (m *Metrics) IncrementAuditEntries() {
	m.AuditEntriesWritten.Inc()
}

// ObserveCheckAccess records the duration of a CheckAccess operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCheckAccess(start time.Time) {
	m.CheckAccessDuration.Observe(time.Since(start).Seconds())
}
