package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New(prometheus.NewRegistry())
	if m == nil {
		t.Error("New() returned nil")
	}
}

func TestNew_DuplicateRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	New(reg)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var m *Collector
	m.ReminderArmed("morning")
	m.ReminderDelivered("morning")
	m.ReminderCancelled()
	m.ReminderRestored()
	m.SetPending(3)
	m.DoseOutcome("taken")
	m.RemoteRequest("fetch", nil, time.Second)
	m.SyncRun(nil)
	m.SOSMessage(nil)
	m.HTTPRequest("GET", "200")
}

func TestReminderCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ReminderArmed("morning")
	m.ReminderArmed("morning")
	m.ReminderArmed("night")
	m.ReminderDelivered("night")

	if got := testutil.ToFloat64(m.RemindersArmed.WithLabelValues("morning")); got != 2 {
		t.Errorf("Expected 2 morning reminders armed, got %v", got)
	}
	if got := testutil.ToFloat64(m.RemindersDelivered.WithLabelValues("night")); got != 1 {
		t.Errorf("Expected 1 night reminder delivered, got %v", got)
	}
}

func TestSetPending(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetPending(4)
	m.SetPending(2)

	if got := testutil.ToFloat64(m.PendingReminders); got != 2 {
		t.Errorf("Expected pending gauge 2, got %v", got)
	}
}

func TestRemoteRequestResultLabel(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RemoteRequest("fetch_by_id", nil, 10*time.Millisecond)
	m.RemoteRequest("fetch_by_id", errors.New("boom"), time.Second)

	if got := testutil.ToFloat64(m.RemoteRequests.WithLabelValues("fetch_by_id", "ok")); got != 1 {
		t.Errorf("Expected 1 ok request, got %v", got)
	}
	if got := testutil.ToFloat64(m.RemoteRequests.WithLabelValues("fetch_by_id", "error")); got != 1 {
		t.Errorf("Expected 1 failed request, got %v", got)
	}
	if got := testutil.CollectAndCount(m.RemoteLatency); got != 1 {
		t.Errorf("Expected one latency series, got %d", got)
	}
}

func TestDoseOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.DoseOutcome("already_zero")

	if got := testutil.ToFloat64(m.DoseOutcomes.WithLabelValues("already_zero")); got != 1 {
		t.Errorf("Expected 1 already_zero outcome, got %v", got)
	}
}
