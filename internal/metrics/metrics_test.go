package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWithPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RepliesSent.Inc()
	m.Classifications.WithLabelValues("interested").Inc()
	m.QueueDepth.WithLabelValues("pending").Set(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepliesSent))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("pending")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// A second set on its own registry does not collide.
	assert.NotPanics(t, func() { NewMetricsWith(prometheus.NewRegistry()) })
}
