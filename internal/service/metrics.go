package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/channelrelay/relay/internal/biz/usecase"
)

// Metrics holds the relay collectors on a private registry
type Metrics struct {
	Registry *prometheus.Registry

	eventsTotal     *prometheus.CounterVec
	channelStates   *prometheus.GaugeVec
	joinCalls       prometheus.Counter
	deliveriesTotal *prometheus.CounterVec
	classifications *prometheus.CounterVec
	archivedRecords prometheus.Counter
	archiveUploads  *prometheus.CounterVec
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates and registers the collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry:    prometheus.NewRegistry(),
		eventsTotal: newCounterVec("events_total", "Events handled by the pipeline, by outcome.", []string{"outcome"}),
		channelStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "channels",
			Help:      "Configured channels by subscription state.",
		}, []string{"state"}),
		joinCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "join_calls_total",
			Help:      "Join requests sent to the platform.",
		}),
		deliveriesTotal: newCounterVec("deliveries_total", "Destination deliveries, by result.", []string{"result"}),
		classifications: newCounterVec("classifications_total", "Urgency classifications, by source and level.", []string{"source", "level"}),
		archivedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "archived_records_total",
			Help:      "Records exported to the archive.",
		}),
		archiveUploads: newCounterVec("archive_uploads_total", "Archive object uploads, by result.", []string{"result"}),
	}

	m.Registry.MustRegister(
		m.eventsTotal,
		m.channelStates,
		m.joinCalls,
		m.deliveriesTotal,
		m.classifications,
		m.archivedRecords,
		m.archiveUploads,
	)

	for _, o := range usecase.AllOutcomes {
		m.eventsTotal.WithLabelValues(string(o))
	}
	return m
}

// ObserveAcquire records the outcome of subscription acquisition
func (m *Metrics) ObserveAcquire(result *usecase.AcquireResult) {
	if m == nil || result == nil {
		return
	}
	for state, n := range result.Summary() {
		m.channelStates.WithLabelValues(string(state)).Set(float64(n))
	}
	m.joinCalls.Add(float64(result.JoinCalls))
}

// ObserveHandle records one pipeline result
func (m *Metrics) ObserveHandle(result *usecase.HandleResult) {
	if m == nil || result == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(result.Outcome)).Inc()

	if u := result.Urgency; u != nil {
		m.classifications.WithLabelValues(string(u.Source), string(u.Level)).Inc()
	}
	if d := result.Dispatch; d != nil {
		m.deliveriesTotal.WithLabelValues("sent").Add(float64(d.Sent - d.Degraded))
		m.deliveriesTotal.WithLabelValues("degraded").Add(float64(d.Degraded))
		m.deliveriesTotal.WithLabelValues("failed").Add(float64(d.Failed))
	}
}

// ObserveArchive records one archive upload attempt series
func (m *Metrics) ObserveArchive(records int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.archiveUploads.WithLabelValues("failed").Inc()
		return
	}
	m.archiveUploads.WithLabelValues("ok").Inc()
	m.archivedRecords.Add(float64(records))
}
