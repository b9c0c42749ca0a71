package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines the counters emitted by the analysis pipeline.
type Metrics interface {
	IncJobsSubmitted()
	IncJobsCompleted(status string)
	IncScanVerdicts(threatType string)
	IncSecurityBreaches()
	IncDispatchFailures()
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncJobsSubmitted()         {}
func (Noop) IncJobsCompleted(string)   {}
func (Noop) IncScanVerdicts(string)    {}
func (Noop) IncSecurityBreaches()      {}
func (Noop) IncDispatchFailures()      {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	jobsSubmitted    prometheus.Counter
	jobsCompleted    *prometheus.CounterVec
	scanVerdicts     *prometheus.CounterVec
	securityBreaches prometheus.Counter
	dispatchFailures prometheus.Counter
	once             sync.Once
}

// NewProm constructs Prometheus-backed metrics under the given namespace and
// registers them with the default registry.
func NewProm(namespace string) *Prom {
	p := &Prom{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Analysis jobs accepted for processing",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Analysis jobs that reached a terminal status",
		}, []string{"status"}),
		scanVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_verdicts_total",
			Help:      "Content firewall verdicts by threat type",
		}, []string{"threat_type"}),
		securityBreaches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_breaches_total",
			Help:      "Rejected tenant isolation violations",
		}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Failed task enqueue attempts",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.jobsSubmitted, p.jobsCompleted, p.scanVerdicts,
			p.securityBreaches, p.dispatchFailures)
	})
}

func (p *Prom) IncJobsSubmitted() {
	p.jobsSubmitted.Inc()
}

func (p *Prom) IncJobsCompleted(status string) {
	p.jobsCompleted.WithLabelValues(status).Inc()
}

func (p *Prom) IncScanVerdicts(threatType string) {
	p.scanVerdicts.WithLabelValues(threatType).Inc()
}

func (p *Prom) IncSecurityBreaches() {
	p.securityBreaches.Inc()
}

func (p *Prom) IncDispatchFailures() {
	p.dispatchFailures.Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
