package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "medipal"

// Collector holds the prometheus series for the reminder core. A nil
// *Collector is valid and records nothing.
type Collector struct {
	RemindersArmed     *prometheus.CounterVec
	RemindersDelivered *prometheus.CounterVec
	RemindersCancelled prometheus.Counter
	RemindersRestored  prometheus.Counter
	PendingReminders   prometheus.Gauge

	DoseOutcomes *prometheus.CounterVec

	RemoteRequests *prometheus.CounterVec
	RemoteLatency  *prometheus.HistogramVec

	SyncRuns    *prometheus.CounterVec
	SOSMessages *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
}

// New registers every series on reg
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RemindersArmed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "armed_total",
			Help:      "Reminder jobs armed by time-of-day slot.",
		}, []string{"slot"}),

		RemindersDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "delivered_total",
			Help:      "Reminder notices delivered by time-of-day slot.",
		}, []string{"slot"}),

		RemindersCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "cancelled_total",
			Help:      "Armed reminder jobs retracted before firing.",
		}),

		RemindersRestored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "restored_total",
			Help:      "Prescriptions whose reminders were re-armed at boot.",
		}),

		PendingReminders: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "pending",
			Help:      "Reminder jobs currently armed.",
		}),

		DoseOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "doses",
			Name:      "reconciliations_total",
			Help:      "Mark-as-taken reconciliations by outcome.",
		}, []string{"outcome"}),

		RemoteRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Backend API requests by operation and result.",
		}, []string{"operation", "result"}),

		RemoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Backend API latency distribution.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),

		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Prescription sync runs by result.",
		}, []string{"result"}),

		SOSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sos",
			Name:      "messages_total",
			Help:      "Emergency SMS messages by result.",
		}, []string{"result"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Local API requests by method and status.",
		}, []string{"method", "status"}),
	}
}

func (c *Collector) ReminderArmed(slot string) {
	if c == nil {
		return
	}
	c.RemindersArmed.WithLabelValues(slot).Inc()
}

func (c *Collector) ReminderDelivered(slot string) {
	if c == nil {
		return
	}
	c.RemindersDelivered.WithLabelValues(slot).Inc()
}

func (c *Collector) ReminderCancelled() {
	if c == nil {
		return
	}
	c.RemindersCancelled.Inc()
}

func (c *Collector) ReminderRestored() {
	if c == nil {
		return
	}
	c.RemindersRestored.Inc()
}

func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.PendingReminders.Set(float64(n))
}

func (c *Collector) DoseOutcome(outcome string) {
	if c == nil {
		return
	}
	c.DoseOutcomes.WithLabelValues(outcome).Inc()
}

// RemoteRequest records one backend call and its latency
func (c *Collector) RemoteRequest(operation string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.RemoteRequests.WithLabelValues(operation, result(err)).Inc()
	c.RemoteLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (c *Collector) SyncRun(err error) {
	if c == nil {
		return
	}
	c.SyncRuns.WithLabelValues(result(err)).Inc()
}

func (c *Collector) SOSMessage(err error) {
	if c == nil {
		return
	}
	c.SOSMessages.WithLabelValues(result(err)).Inc()
}

func (c *Collector) HTTPRequest(method, status string) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, status).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
