package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Document("imported")
		m.Revision("committed")
		m.ContentStep("change")
		m.CommitDuration(time.Second)
		m.Qualities(1, 2)
		m.SourceRequest("2xx")
	})
	assert.Nil(t, New(nil))
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Document("imported")
	m.Document("imported")
	m.Document("skipped")
	m.Qualities(3, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.documents.WithLabelValues("imported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documents.WithLabelValues("skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.qualities.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.qualities.WithLabelValues("missing")))
}
