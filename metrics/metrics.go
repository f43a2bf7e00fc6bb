// Package metrics exposes orchestrator counters and gauges through a
// dedicated prometheus registry. All Collector methods are nil-safe so that
// components can be built without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const subsystem = "orchestrator"

// Collector groups orchestrator metrics
type Collector struct {
	Registry      *prometheus.Registry
	jobs          *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	pendingOpen   prometheus.Gauge
	overflowDepth prometheus.Gauge
	sendAttempts  *prometheus.CounterVec
	restarts      prometheus.Counter
	serviceUp     prometheus.Gauge
	swept         prometheus.Counter
}

// New creates collector registered in a fresh registry
func New(namespace string) *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jobs_total",
			Help:      "Scheduler job transitions by queue and state",
		}, []string{"queue", "state"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "job_duration_seconds",
			Help:      "Scheduler job run time by queue",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"queue"}),
		pendingOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_open",
			Help:      "Open jobs accepted but not finished",
		}),
		overflowDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "overflow_depth",
			Help:      "Deferred submit requests held in the overflow queue",
		}),
		sendAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "send_attempts_total",
			Help:      "Outbound request attempts by outcome",
		}, []string{"outcome"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_restarts_total",
			Help:      "Supervised service (re)starts",
		}),
		serviceUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_up",
			Help:      "1 when the supervised service process is alive",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "records_swept_total",
			Help:      "Allocation records removed by the cleanup sweep",
		}),
	}
	c.Registry.MustRegister(c.jobs, c.jobDuration, c.pendingOpen, c.overflowDepth, c.sendAttempts, c.restarts, c.serviceUp, c.swept)
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return c
}

// JobState counts a job transition
func (c *Collector) JobState(queue, state string) {
	if c == nil {
		return
	}
	c.jobs.WithLabelValues(queue, state).Inc()
}

// ObserveJob records job run time
func (c *Collector) ObserveJob(queue string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.jobDuration.WithLabelValues(queue).Observe(elapsed.Seconds())
}

// SetPendingOpen sets pending open gauge
func (c *Collector) SetPendingOpen(n int) {
	if c == nil {
		return
	}
	c.pendingOpen.Set(float64(n))
}

// SetOverflowDepth sets overflow depth gauge
func (c *Collector) SetOverflowDepth(n int) {
	if c == nil {
		return
	}
	c.overflowDepth.Set(float64(n))
}

// SendAttempt counts an outbound attempt outcome
func (c *Collector) SendAttempt(outcome string) {
	if c == nil {
		return
	}
	c.sendAttempts.WithLabelValues(outcome).Inc()
}

// Restart counts a service start
func (c *Collector) Restart() {
	if c == nil {
		return
	}
	c.restarts.Inc()
}

// ServiceUp sets liveness gauge
func (c *Collector) ServiceUp(up bool) {
	if c == nil {
		return
	}
	if up {
		c.serviceUp.Set(1)
		return
	}
	c.serviceUp.Set(0)
}

// Swept counts swept records
func (c *Collector) Swept(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.swept.Add(float64(n))
}
