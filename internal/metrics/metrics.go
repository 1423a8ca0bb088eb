// Package metrics holds the in-process Prometheus registry the daemon
// records into. No /metrics endpoint is served (spec Non-goals), and neither
// the "health" wire response nor the "doctor" CLI reads the registry back.
package metrics

import (
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every counter/histogram this module records, plus the
// underlying prometheus.Registry that Collect flattens into a Snapshot.
type Registry struct {
	reg *prometheus.Registry

	AdmissionRejections *prometheus.CounterVec
	QueryDuration       *prometheus.HistogramVec
	QueriesTotal        *prometheus.CounterVec

	PublishTotal   *prometheus.CounterVec
	CompactionTotal *prometheus.CounterVec
	GCReclaimedSegments prometheus.Counter
	GCReclaimedTombstones prometheus.Counter

	EmbedDuration *prometheus.HistogramVec
	SyncDuration  prometheus.Histogram
}

// New creates and registers every metric against a fresh prometheus.Registry
// scoped to this process.
func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Registry{
		reg: reg,
		AdmissionRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ggrep", Name: "admission_rejections_total",
			Help: "Total admission-layer rejections by reason.",
		}, []string{"reason"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ggrep", Name: "query_duration_seconds",
			Help:    "Search query latency by pipeline stage.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"stage"}),
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ggrep", Name: "queries_total",
			Help: "Total search queries by outcome.",
		}, []string{"outcome"}),
		PublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ggrep", Name: "publish_total",
			Help: "Total snapshot publishes by outcome.",
		}, []string{"outcome"}),
		CompactionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ggrep", Name: "compaction_total",
			Help: "Total compaction runs by outcome.",
		}, []string{"outcome"}),
		GCReclaimedSegments: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ggrep", Name: "gc_reclaimed_segments_total",
			Help: "Total segment tables reclaimed by GC.",
		}),
		GCReclaimedTombstones: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ggrep", Name: "gc_reclaimed_tombstones_total",
			Help: "Total tombstone files reclaimed by GC.",
		}),
		EmbedDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ggrep", Name: "embed_duration_seconds",
			Help:    "Embedding batch duration.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"backend"}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ggrep", Name: "sync_duration_seconds",
			Help:    "Full ingest sync duration.",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300},
		}),
	}
}

// RecordQuery records one completed search's outcome and latency.
func (r *Registry) RecordQuery(outcome string, d time.Duration) {
	r.QueriesTotal.WithLabelValues(outcome).Inc()
	r.QueryDuration.WithLabelValues("total").Observe(d.Seconds())
}

// RecordAdmissionRejection records one admission-layer rejection.
func (r *Registry) RecordAdmissionRejection(reason string) {
	r.AdmissionRejections.WithLabelValues(reason).Inc()
}

// RecordPublish records one snapshot publish attempt's outcome.
func (r *Registry) RecordPublish(outcome string) {
	r.PublishTotal.WithLabelValues(outcome).Inc()
}

// RecordCompaction records one compaction run's outcome.
func (r *Registry) RecordCompaction(outcome string) {
	r.CompactionTotal.WithLabelValues(outcome).Inc()
}

// RecordGCReclaim records how many segments/tombstones one GC pass dropped.
func (r *Registry) RecordGCReclaim(segments, tombstones int) {
	r.GCReclaimedSegments.Add(float64(segments))
	r.GCReclaimedTombstones.Add(float64(tombstones))
}

// Snapshot is the flattened, JSON-friendly view of the registry's counters
// that Collect returns.
type Snapshot struct {
	QueriesTotal          float64            `json:"queries_total"`
	AdmissionRejections   map[string]float64 `json:"admission_rejections"`
	PublishOutcomes       map[string]float64 `json:"publish_outcomes"`
	CompactionOutcomes    map[string]float64 `json:"compaction_outcomes"`
	GCReclaimedSegments   float64            `json:"gc_reclaimed_segments"`
	GCReclaimedTombstones float64            `json:"gc_reclaimed_tombstones"`
}

// Collect flattens the registry's current counter values into a Snapshot.
func (r *Registry) Collect() Snapshot {
	snap := Snapshot{
		AdmissionRejections: map[string]float64{},
		PublishOutcomes:     map[string]float64{},
		CompactionOutcomes:  map[string]float64{},
	}
	families, err := r.reg.Gather()
	if err != nil {
		return snap
	}
	for _, mf := range families {
		switch mf.GetName() {
		case "ggrep_queries_total":
			for _, m := range mf.GetMetric() {
				snap.QueriesTotal += counterValue(m)
			}
		case "ggrep_admission_rejections_total":
			for _, m := range mf.GetMetric() {
				snap.AdmissionRejections[labelValue(m, "reason")] += counterValue(m)
			}
		case "ggrep_publish_total":
			for _, m := range mf.GetMetric() {
				snap.PublishOutcomes[labelValue(m, "outcome")] += counterValue(m)
			}
		case "ggrep_compaction_total":
			for _, m := range mf.GetMetric() {
				snap.CompactionOutcomes[labelValue(m, "outcome")] += counterValue(m)
			}
		case "ggrep_gc_reclaimed_segments_total":
			for _, m := range mf.GetMetric() {
				snap.GCReclaimedSegments += counterValue(m)
			}
		case "ggrep_gc_reclaimed_tombstones_total":
			for _, m := range mf.GetMetric() {
				snap.GCReclaimedTombstones += counterValue(m)
			}
		}
	}
	return snap
}

func counterValue(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
