package reminder

import (
	"context"
	"time"

	"github.com/Medi-Pal/medipal/internal/metrics"
	"go.uber.org/zap"
)

// Deliverer runs a fired reminder
type Deliverer interface {
	Deliver(ctx context.Context, p Payload)
}

// SchedulerConfig wires a Scheduler
type SchedulerConfig struct {
	Planner       *Planner
	Flags         *Flags
	Deliverer     Deliverer
	Logger        *zap.Logger
	Metrics       *metrics.Collector
	DailyRollover bool
}

// Scheduler arms one deferred job per slot. Every slot has a single global
// job key, so only the most recently scheduled medicine per slot fires.
type Scheduler struct {
	planner   *Planner
	flags     *Flags
	deliverer Deliverer
	logger    *zap.Logger
	metrics   *metrics.Collector
	rollover  bool

	queue *TimerQueue
}

// NewScheduler creates a scheduler whose jobs run with ctx
func NewScheduler(ctx context.Context, cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		planner:   cfg.Planner,
		flags:     cfg.Flags,
		deliverer: cfg.Deliverer,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		rollover:  cfg.DailyRollover,
	}
	s.queue = NewTimerQueue(ctx, cfg.Planner.Now, s.fire)
	return s
}

// ScheduleAllForMedicine enables reminders for the prescription and arms all
// four slots for the medicine, replacing whatever each slot held
func (s *Scheduler) ScheduleAllForMedicine(ctx context.Context, prescriptionID, medicineName, dosageText string) error {
	if err := s.flags.SetEnabled(prescriptionID, true); err != nil {
		s.logger.Warn("Failed to enable reminders",
			zap.String("prescription_id", prescriptionID),
			zap.Error(err),
		)
		return err
	}

	for _, slot := range Slots {
		s.ScheduleSlot(slot, NewPayload(slot, prescriptionID, medicineName, dosageText))
	}

	s.logger.Info("Reminders scheduled",
		zap.String("prescription_id", prescriptionID),
		zap.String("medicine", medicineName),
		zap.String("dosage", dosageText),
	)
	return nil
}

// ScheduleSlot arms p at the slot's next occurrence
func (s *Scheduler) ScheduleSlot(slot Slot, p Payload) Job {
	job := Job{
		Key:     slot.JobKey(),
		FireAt:  s.planner.NextFire(slot),
		Payload: p,
	}
	if s.queue.Enqueue(job) {
		s.logger.Debug("Replaced armed reminder", zap.String("slot", string(slot)))
	}
	s.metrics.ReminderArmed(string(slot))
	s.metrics.SetPending(len(s.queue.Pending()))
	return job
}

// Cancel disables reminders for the prescription. Jobs already armed for
// its medicines stay armed until they fire or are replaced.
func (s *Scheduler) Cancel(ctx context.Context, prescriptionID string) error {
	if err := s.flags.SetEnabled(prescriptionID, false); err != nil {
		s.logger.Warn("Failed to disable reminders",
			zap.String("prescription_id", prescriptionID),
			zap.Error(err),
		)
		return err
	}
	s.logger.Info("Reminders disabled", zap.String("prescription_id", prescriptionID))
	return nil
}

// Toggle flips the prescription's flag, schedules or cancels to match and
// returns the new state
func (s *Scheduler) Toggle(ctx context.Context, prescriptionID, medicineName, dosageText string) (bool, error) {
	enabled, err := s.flags.Toggle(prescriptionID)
	if err != nil {
		return false, err
	}
	if enabled {
		return true, s.ScheduleAllForMedicine(ctx, prescriptionID, medicineName, dosageText)
	}
	return false, s.Cancel(ctx, prescriptionID)
}

// CancelAll retracts every armed slot job
func (s *Scheduler) CancelAll() int {
	n := s.queue.CancelAll()
	for i := 0; i < n; i++ {
		s.metrics.ReminderCancelled()
	}
	s.metrics.SetPending(0)
	s.logger.Info("All reminders cancelled", zap.Int("count", n))
	return n
}

// Pending lists the armed jobs
func (s *Scheduler) Pending() []Job {
	return s.queue.Pending()
}

// Close retracts armed jobs and waits for deliveries in flight
func (s *Scheduler) Close() {
	s.queue.Close()
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	s.deliverer.Deliver(ctx, job.Payload)
	s.metrics.SetPending(len(s.queue.Pending()))

	if !s.rollover {
		return
	}

	enabled, err := s.flags.IsEnabled(job.Payload.PrescriptionID)
	if err != nil {
		s.logger.Warn("Failed to read reminder flag for rollover",
			zap.String("prescription_id", job.Payload.PrescriptionID),
			zap.Error(err),
		)
		return
	}
	if !enabled {
		return
	}

	slot := job.Payload.Slot
	next := Job{
		Key:     job.Key,
		FireAt:  s.planner.NextFireAfter(slot, laterOf(job.FireAt, s.planner.Now())),
		Payload: job.Payload,
	}
	// a newer schedule for the slot takes precedence over the rollover
	if s.queue.EnqueueIfAbsent(next) {
		s.metrics.ReminderArmed(string(slot))
		s.logger.Debug("Reminder rolled over",
			zap.String("slot", string(slot)),
			zap.Time("fire_at", next.FireAt),
		)
	}
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
