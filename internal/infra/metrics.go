package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	JobsSubmitted      prometheus.Counter
	JobsFinished       *prometheus.CounterVec
	GenerationAttempts *prometheus.CounterVec
	QualityVerdicts    *prometheus.CounterVec
	CreditsReserved    prometheus.Counter
	CreditsRefunded    *prometheus.CounterVec
	WatchdogRecoveries *prometheus.CounterVec
}

// NewMetrics registers every counter on a fresh registry together with the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "illustrator",
			Name:      "jobs_submitted_total",
			Help:      "Conversion jobs accepted.",
		}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "illustrator",
			Name:      "jobs_finished_total",
			Help:      "Conversion jobs that reached a terminal status.",
		}, []string{"status"}),
		GenerationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "illustrator",
			Name:      "generation_attempts_total",
			Help:      "Model calls made by the generation loop by outcome.",
		}, []string{"outcome"}),
		QualityVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "illustrator",
			Name:      "quality_verdicts_total",
			Help:      "Quality gate verdicts.",
		}, []string{"verdict"}),
		CreditsReserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "illustrator",
			Name:      "credits_reserved_total",
			Help:      "Credits reserved by submissions.",
		}),
		CreditsRefunded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "illustrator",
			Name:      "credits_refunded_total",
			Help:      "Credits refunded by reason.",
		}, []string{"reason"}),
		WatchdogRecoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "illustrator",
			Name:      "watchdog_recoveries_total",
			Help:      "Stale jobs failed by the status watchdog.",
		}, []string{"from"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsSubmitted,
		m.JobsFinished,
		m.GenerationAttempts,
		m.QualityVerdicts,
		m.CreditsReserved,
		m.CreditsRefunded,
		m.WatchdogRecoveries,
	)
	return m
}

func (m *Metrics) JobSubmitted() {
	if m != nil {
		m.JobsSubmitted.Inc()
	}
}

func (m *Metrics) JobFinished(status string) {
	if m != nil {
		m.JobsFinished.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) GenerationAttempt(outcome string) {
	if m != nil {
		m.GenerationAttempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) QualityVerdict(pass bool) {
	if m == nil {
		return
	}
	verdict := "fail"
	if pass {
		verdict = "pass"
	}
	m.QualityVerdicts.WithLabelValues(verdict).Inc()
}

func (m *Metrics) Reserved(amount int) {
	if m != nil && amount > 0 {
		m.CreditsReserved.Add(float64(amount))
	}
}

func (m *Metrics) Refunded(reason string, amount int) {
	if m != nil && amount > 0 {
		m.CreditsRefunded.WithLabelValues(reason).Add(float64(amount))
	}
}

func (m *Metrics) WatchdogRecovered(from string) {
	if m != nil {
		m.WatchdogRecoveries.WithLabelValues(from).Inc()
	}
}
