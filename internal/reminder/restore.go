package reminder

import (
	"context"
	"fmt"

	"github.com/Medi-Pal/medipal/internal/metrics"
	"github.com/Medi-Pal/medipal/internal/store"
	"go.uber.org/zap"
)

// PrescriptionLister reads the cached prescriptions
type PrescriptionLister interface {
	ListPrescriptions(ctx context.Context) ([]store.Prescription, error)
}

// Arranger arms the reminders of one medicine
type Arranger interface {
	ScheduleAllForMedicine(ctx context.Context, prescriptionID, medicineName, dosageText string) error
}

// RestoreReport summarises a restore pass
type RestoreReport struct {
	Scanned  int      `json:"scanned"`
	Restored int      `json:"restored"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Restorer re-arms enabled reminders after a restart
type Restorer struct {
	prescriptions PrescriptionLister
	flags         *Flags
	scheduler     Arranger
	logger        *zap.Logger
	metrics       *metrics.Collector
}

func NewRestorer(prescriptions PrescriptionLister, flags *Flags, scheduler Arranger, logger *zap.Logger, m *metrics.Collector) *Restorer {
	return &Restorer{
		prescriptions: prescriptions,
		flags:         flags,
		scheduler:     scheduler,
		logger:        logger,
		metrics:       m,
	}
}

// Restore re-arms the first medicine of every prescription whose reminders
// are enabled. A failure on one prescription does not stop the others.
func (r *Restorer) Restore(ctx context.Context) RestoreReport {
	var report RestoreReport

	list, err := r.prescriptions.ListPrescriptions(ctx)
	if err != nil {
		r.logger.Warn("Failed to load prescriptions for restore", zap.Error(err))
		report.Failed++
		report.Errors = append(report.Errors, err.Error())
		return report
	}

	for _, p := range list {
		report.Scanned++

		restored, err := r.restoreOne(ctx, p)
		switch {
		case err != nil:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", p.ID, err))
			r.logger.Warn("Failed to restore reminders",
				zap.String("prescription_id", p.ID),
				zap.Error(err),
			)
		case restored:
			report.Restored++
			r.metrics.ReminderRestored()
		default:
			report.Skipped++
		}
	}

	r.logger.Info("Reminders restored",
		zap.Int("scanned", report.Scanned),
		zap.Int("restored", report.Restored),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (r *Restorer) restoreOne(ctx context.Context, p store.Prescription) (restored bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			restored = false
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	enabled, err := r.flags.IsEnabled(p.ID)
	if err != nil {
		return false, err
	}
	if !enabled || len(p.Medicines) == 0 {
		return false, nil
	}

	// only the first medicine of a prescription is re-armed
	m := p.Medicines[0]
	if err := r.scheduler.ScheduleAllForMedicine(ctx, p.ID, m.DisplayName(), DosageText(m)); err != nil {
		return false, err
	}
	return true, nil
}
