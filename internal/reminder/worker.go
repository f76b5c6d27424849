package reminder

import (
	"context"
	"fmt"

	"github.com/Medi-Pal/medipal/internal/metrics"
	"github.com/Medi-Pal/medipal/internal/notify"
	"go.uber.org/zap"
)

// Payload is the data a reminder job carries to delivery
type Payload struct {
	Title          string `json:"title"`
	Message        string `json:"message"`
	PrescriptionID string `json:"prescription_id"`
	MedicineName   string `json:"medicine_name"`
	Dosage         string `json:"dosage"`
	Slot           Slot   `json:"slot"`
}

// NewPayload builds the payload for one medicine in one slot
func NewPayload(slot Slot, prescriptionID, medicineName, dosageText string) Payload {
	return Payload{
		Title:          fmt.Sprintf("%s medicine reminder", slot.Title()),
		Message:        fmt.Sprintf("Time to take %s (%s)", medicineName, dosageText),
		PrescriptionID: prescriptionID,
		MedicineName:   medicineName,
		Dosage:         dosageText,
		Slot:           slot,
	}
}

// Notifier surfaces a reminder notice
type Notifier interface {
	ShowReminder(ctx context.Context, n notify.Notice) error
}

// Worker delivers fired reminders. Delivery always completes; presentation
// failures are logged and never retried.
type Worker struct {
	notifier Notifier
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func NewWorker(notifier Notifier, logger *zap.Logger, m *metrics.Collector) *Worker {
	return &Worker{notifier: notifier, logger: logger, metrics: m}
}

// Deliver surfaces p with its mark-as-taken and need-help actions
func (w *Worker) Deliver(ctx context.Context, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic delivering reminder",
				zap.String("prescription_id", p.PrescriptionID),
				zap.Any("recover", r),
			)
		}
	}()

	notice := BuildNotice(p)
	if err := w.notifier.ShowReminder(ctx, notice); err != nil {
		w.logger.Warn("Failed to show reminder",
			zap.String("prescription_id", p.PrescriptionID),
			zap.String("medicine", p.MedicineName),
			zap.String("slot", string(p.Slot)),
			zap.Error(err),
		)
		return
	}

	w.metrics.ReminderDelivered(string(p.Slot))
	w.logger.Info("Reminder delivered",
		zap.String("prescription_id", p.PrescriptionID),
		zap.String("medicine", p.MedicineName),
		zap.String("slot", string(p.Slot)),
	)
}

// BuildNotice renders p as a reminder notice
func BuildNotice(p Payload) notify.Notice {
	return notify.Notice{
		Kind:    notify.KindReminder,
		Title:   p.Title,
		Message: p.Message,
		Actions: []notify.Action{
			{
				Kind:           notify.ActionMarkTaken,
				Label:          "Mark as taken",
				PrescriptionID: p.PrescriptionID,
				MedicineName:   p.MedicineName,
				TimeOfDay:      string(p.Slot),
			},
			{
				Kind:         notify.ActionNeedHelp,
				Label:        "Need help",
				MedicineName: p.MedicineName,
			},
		},
		Data: map[string]string{
			"prescription_id": p.PrescriptionID,
			"slot":            string(p.Slot),
			"dosage":          p.Dosage,
		},
	}
}
