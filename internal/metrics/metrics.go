// Package metrics exposes Prometheus counters for imports and enrichment.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer, in which case nothing is
// recorded.
type Metrics struct {
	documents      *prometheus.CounterVec
	revisions      *prometheus.CounterVec
	chain          *prometheus.CounterVec
	commitDuration prometheus.Histogram
	qualities      *prometheus.CounterVec
	sourceRequests *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	return &Metrics{
		documents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "evotrees",
			Name:      "documents_total",
			Help:      "Documents processed by the importer, by final status",
		}, []string{"status"}),
		revisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "evotrees",
			Name:      "revisions_total",
			Help:      "Revisions processed by the importer, by outcome",
		}, []string{"outcome"}),
		chain: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "evotrees",
			Name:      "content_steps_total",
			Help:      "Committed revisions classified as change, revert or unchanged",
		}, []string{"kind"}),
		commitDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "evotrees",
			Name:      "revision_commit_duration_seconds",
			Help:      "Duration of the per-revision write transaction",
			Buckets:   prometheus.DefBuckets,
		}),
		qualities: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "evotrees",
			Name:      "qualities_total",
			Help:      "Quality scores handled by enrichment, by result",
		}, []string{"result"}),
		sourceRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "evotrees",
			Name:      "source_requests_total",
			Help:      "HTTP requests sent to the revision source, by status class",
		}, []string{"status"}),
	}
}

func (m *Metrics) Document(status string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(status).Inc()
}

func (m *Metrics) Revision(outcome string) {
	if m == nil {
		return
	}
	m.revisions.WithLabelValues(outcome).Inc()
}

// ContentStep records whether a committed revision changed, reverted or kept
// the document content.
func (m *Metrics) ContentStep(kind string) {
	if m == nil {
		return
	}
	m.chain.WithLabelValues(kind).Inc()
}

func (m *Metrics) CommitDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.commitDuration.Observe(d.Seconds())
}

func (m *Metrics) Qualities(applied, missing int) {
	if m == nil {
		return
	}
	m.qualities.WithLabelValues("applied").Add(float64(applied))
	m.qualities.WithLabelValues("missing").Add(float64(missing))
}

func (m *Metrics) SourceRequest(status string) {
	if m == nil {
		return
	}
	m.sourceRequests.WithLabelValues(status).Inc()
}
