package reminder

import (
	"sync"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
)

const flagsNamespace = "notification_prefs"

// Flags tracks whether reminders are enabled per prescription. Flags only
// record intent; arming and disarming jobs is the Scheduler's job.
type Flags struct {
	prefs Prefs
	mu    sync.Mutex
}

func NewFlags(prefs Prefs) *Flags {
	return &Flags{prefs: prefs}
}

// IsEnabled defaults to false for prescriptions never toggled
func (f *Flags) IsEnabled(prescriptionID string) (bool, error) {
	return f.prefs.GetBool(flagsNamespace, prescriptionID, false)
}

func (f *Flags) SetEnabled(prescriptionID string, enabled bool) error {
	if err := f.prefs.SetBool(flagsNamespace, prescriptionID, enabled); err != nil {
		return apperrors.ErrPrefWrite.WithCause(err)
	}
	return nil
}

// Toggle flips the flag and returns the new value
func (f *Flags) Toggle(prescriptionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	enabled, err := f.IsEnabled(prescriptionID)
	if err != nil {
		return false, err
	}
	enabled = !enabled
	if err := f.SetEnabled(prescriptionID, enabled); err != nil {
		return !enabled, err
	}
	return enabled, nil
}
