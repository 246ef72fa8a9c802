package inbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a Prometheus-backed Observer for the delivery pipeline.
type Metrics struct {
	runs         *prometheus.CounterVec
	inserted     prometheus.Counter
	agentSeconds prometheus.Histogram
}

// NewMetrics creates and registers pipeline metrics on reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "inbox",
			Name:      "runs_total",
			Help:      "Delivery engine runs by outcome.",
		}, []string{"status", "reason"}),
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "inbox",
			Name:      "items_inserted_total",
			Help:      "Items delivered to user inboxes.",
		}),
		agentSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "haven",
			Subsystem: "inbox",
			Name:      "agent_seconds",
			Help:      "Latency of generating-agent invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}

	reg.MustRegister(m.runs, m.inserted, m.agentSeconds)
	return m
}

// RunFinished records the run outcome.
func (m *Metrics) RunFinished(_ string, res Result) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(res.Status), string(res.Reason)).Inc()
	if len(res.Inserted) > 0 {
		m.inserted.Add(float64(len(res.Inserted)))
	}
}

// AgentCalled records agent latency, including failed calls.
func (m *Metrics) AgentCalled(_ string, elapsed time.Duration, _ error) {
	if m == nil {
		return
	}
	m.agentSeconds.Observe(elapsed.Seconds())
}
