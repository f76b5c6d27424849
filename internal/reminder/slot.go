// Package reminder derives per-medicine reminder schedules from cached
// prescriptions, arms them on a replace-on-conflict timer queue and restores
// them after a restart.
package reminder

import (
	"fmt"
	"strings"
)

// Slot is a time-of-day reminder slot
type Slot string

const (
	Morning   Slot = "morning"
	Afternoon Slot = "afternoon"
	Evening   Slot = "evening"
	Night     Slot = "night"
)

// Slots lists every slot in day order
var Slots = []Slot{Morning, Afternoon, Evening, Night}

// ClockTime is an hour and minute on a 24 hour clock
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (c ClockTime) String() string {
	return FormatTime(c.Hour, c.Minute)
}

var defaultTimes = map[Slot]ClockTime{
	Morning:   {Hour: 8, Minute: 30},
	Afternoon: {Hour: 13, Minute: 30},
	Evening:   {Hour: 17, Minute: 0},
	Night:     {Hour: 20, Minute: 30},
}

// ParseSlot matches s against the slot names ignoring case and surrounding
// whitespace
func ParseSlot(s string) (Slot, error) {
	for _, slot := range Slots {
		if strings.EqualFold(strings.TrimSpace(s), string(slot)) {
			return slot, nil
		}
	}
	return "", fmt.Errorf("unknown time of day %q", s)
}

// JobKey is the deferred job identifier for the slot. It is shared by every
// prescription, so arming a slot replaces whatever was armed there before.
func (s Slot) JobKey() string {
	return "medicine_reminder_" + string(s)
}

// Default returns the factory reminder time for the slot
func (s Slot) Default() ClockTime {
	return defaultTimes[s]
}

// Phrase renders the slot as used in dosage text
func (s Slot) Phrase() string {
	if s == Night {
		return "at night"
	}
	return "in " + string(s)
}

// Title returns the capitalised slot name
func (s Slot) Title() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}
