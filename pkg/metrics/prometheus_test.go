package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(WithRegisterer(reg))

	r.RecordJob(3, "scan", 1.5, nil)
	r.RecordJob(3, "scan", 0.5, errors.New("boom"))
	r.RecordScanDeferred("min_interval")
	r.RecordQueueDepth(7)
	r.RecordTradeClosed("target", 2.5)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsTotal.WithLabelValues("3", "scan", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsTotal.WithLabelValues("3", "scan", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scansDeferred.WithLabelValues("min_interval")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tradesClosed.WithLabelValues("target")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordersDoNotCollideOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(WithRegisterer(prometheus.NewRegistry()))
		New(WithRegisterer(prometheus.NewRegistry()))
	})
}
