package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.JobSubmitted()
	m.JobSubmitted()
	m.JobFinished("failed", "RateLimited", 2*time.Second)
	m.SetQueueDepth(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFinished.WithLabelValues("failed", "RateLimited")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobSubmitted()
		m.JobFinished("completed", "", time.Second)
		m.RunningDelta(1)
		m.EngineOutcome("anomaly", "Evaluated")
	})
}
