package metrics

import (
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "safe_relay"

type Metrics struct {
	ns       string
	registry *prometheus.Registry
	factory  opmetrics.Factory

	info *prometheus.GaugeVec
	up   prometheus.Gauge

	submissions *prometheus.CounterVec
	taskStatus  *prometheus.CounterVec
	signatures  *prometheus.CounterVec
	predictions prometheus.Counter
}

func NewMetrics(procName string) *Metrics {
	if procName == "" {
		procName = "default"
	}
	ns := Namespace + "_" + procName

	registry := opmetrics.NewRegistry()
	factory := opmetrics.With(registry)

	return &Metrics{
		ns:       ns,
		registry: registry,
		factory:  factory,

		info: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "info",
			Help:      "Pseudo-metric tracking version and config info",
		}, []string{
			"version",
		}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "up",
			Help:      "1 if the relayer has finished starting up",
		}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "relay_submissions_total",
			Help:      "Relay submissions by outcome",
		}, []string{"outcome"}),
		taskStatus: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "relay_task_status_total",
			Help:      "Task status reads by reported status",
		}, []string{"status"}),
		signatures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "signatures_total",
			Help:      "Signing attempts by outcome",
		}, []string{"outcome"}),
		predictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "predictions_total",
			Help:      "Account addresses predicted",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordInfo(version string) {
	m.info.WithLabelValues(version).Set(1)
}

func (m *Metrics) RecordUp() {
	m.up.Set(1)
}

func (m *Metrics) RecordSubmission(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTaskStatus(status string) {
	m.taskStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordSignature(outcome string) {
	m.signatures.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPrediction() {
	m.predictions.Inc()
}

type noopMetrics struct{}

var NoopMetrics = &noopMetrics{}

func (*noopMetrics) RecordInfo(string)       {}
func (*noopMetrics) RecordUp()               {}
func (*noopMetrics) RecordSubmission(string) {}
func (*noopMetrics) RecordTaskStatus(string) {}
func (*noopMetrics) RecordSignature(string)  {}
func (*noopMetrics) RecordPrediction()       {}
