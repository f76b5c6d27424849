package reminder

import (
	"fmt"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
)

const timesNamespace = "reminder_times"

// Prefs is the scalar key-value store the reminder settings persist to
type Prefs interface {
	GetBool(namespace, key string, def bool) (bool, error)
	SetBool(namespace, key string, value bool) error
	GetInt(namespace, key string, def int) (int, error)
	SetInt(namespace, key string, value int) error
}

// Times holds the configured hour and minute per slot
type Times struct {
	prefs Prefs
}

func NewTimes(prefs Prefs) *Times {
	return &Times{prefs: prefs}
}

// Get returns the persisted time for slot or its default. On a read error
// the default is returned alongside the error.
func (t *Times) Get(slot Slot) (ClockTime, error) {
	def := slot.Default()

	hour, err := t.prefs.GetInt(timesNamespace, string(slot)+"_hour", def.Hour)
	if err != nil {
		return def, err
	}
	minute, err := t.prefs.GetInt(timesNamespace, string(slot)+"_minute", def.Minute)
	if err != nil {
		return def, err
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// Set persists hour and minute for slot. Values are stored as given.
func (t *Times) Set(slot Slot, hour, minute int) error {
	if err := t.prefs.SetInt(timesNamespace, string(slot)+"_hour", hour); err != nil {
		return apperrors.ErrPrefWrite.WithCause(err)
	}
	if err := t.prefs.SetInt(timesNamespace, string(slot)+"_minute", minute); err != nil {
		return apperrors.ErrPrefWrite.WithCause(err)
	}
	return nil
}

// All returns the configured time of every slot
func (t *Times) All() (map[Slot]ClockTime, error) {
	out := make(map[Slot]ClockTime, len(Slots))
	for _, slot := range Slots {
		ct, err := t.Get(slot)
		if err != nil {
			return nil, err
		}
		out[slot] = ct
	}
	return out, nil
}

// FormatTime renders a 12 hour clock time such as "8:30 AM" or "1:00 PM"
func FormatTime(hour, minute int) string {
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, minute, period)
}
