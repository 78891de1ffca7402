package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "clinic", "settings")

	m.ObserveSave("success", 120*time.Millisecond)
	m.ObserveSave("partial_failure", time.Second)
	m.ObserveSection("billing_scenarios", "failed")
	m.ObserveRemoteCall("update_clinic_settings", "200", 30*time.Millisecond)
	m.RecordsPurged(3)
	m.RecordsPurged(0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SavesTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SectionResults.WithLabelValues("billing_scenarios", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RemoteCalls.WithLabelValues("update_clinic_settings", "200")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.SaveRecordsPurged))

	count, err := testutil.GatherAndCount(reg, "clinic_settings_save_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSave("success", time.Second)
		m.ObserveSection("clinic_settings", "succeeded")
		m.ObserveRemoteCall("get_members", "200", time.Millisecond)
		m.SessionOpened()
		m.RecordsPurged(1)
	})
}
