package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := New("test")
	c.JobState("open", "queued")
	c.JobState("open", "queued")
	c.JobState("submit", "done")
	c.ObserveJob("open", 120*time.Millisecond)
	c.SetPendingOpen(3)
	c.SetOverflowDepth(7)
	c.SendAttempt("ok")
	c.Restart()
	c.ServiceUp(true)
	c.Swept(2)
	c.Swept(0)

	values := gather(t, c)
	assert.Equal(t, 2.0, values["test_orchestrator_jobs_total{open,queued}"])
	assert.Equal(t, 1.0, values["test_orchestrator_jobs_total{submit,done}"])
	assert.Equal(t, 3.0, values["test_orchestrator_pending_open"])
	assert.Equal(t, 7.0, values["test_orchestrator_overflow_depth"])
	assert.Equal(t, 1.0, values["test_orchestrator_send_attempts_total{ok}"])
	assert.Equal(t, 1.0, values["test_orchestrator_service_restarts_total"])
	assert.Equal(t, 1.0, values["test_orchestrator_service_up"])
	assert.Equal(t, 2.0, values["test_orchestrator_records_swept_total"])
	assert.Equal(t, 1.0, values["test_orchestrator_job_duration_seconds{open}"], "histogram sample count")

	c.ServiceUp(false)
	assert.Equal(t, 0.0, gather(t, c)["test_orchestrator_service_up"])
}

// gather flattens registry samples into name{label values} keys
func gather(t *testing.T, c *Collector) map[string]float64 {
	families, err := c.Registry.Gather()
	require.NoError(t, err)
	ret := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			key := family.GetName()
			if labels := metric.GetLabel(); len(labels) > 0 {
				var values []string
				for _, label := range labels {
					values = append(values, label.GetValue())
				}
				key += "{" + strings.Join(values, ",") + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				ret[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				ret[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				ret[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return ret
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.JobState("open", "queued")
		c.ObserveJob("open", time.Second)
		c.SetPendingOpen(1)
		c.SetOverflowDepth(1)
		c.SendAttempt("ok")
		c.Restart()
		c.ServiceUp(true)
		c.Swept(1)
	})
}
