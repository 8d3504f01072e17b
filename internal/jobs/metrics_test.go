package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("directory:warmup").End(nil))
	err := errors.New("boom")
	assert.Same(t, err, m.Track("directory:warmup").End(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("directory:warmup", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("directory:warmup", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("directory:warmup")))
}

func TestAddEnrichedIgnoresEmptyCounts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddEnriched(OutcomeEnriched, 3)
	m.AddEnriched(OutcomeFailed, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.enriched.WithLabelValues(OutcomeEnriched)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.enriched.WithLabelValues(OutcomeFailed)))

	var nilMetrics *Metrics
	nilMetrics.AddEnriched(OutcomeEnriched, 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
