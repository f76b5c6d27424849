package reminder

import (
	"strconv"
	"strings"
	"time"

	"github.com/Medi-Pal/medipal/internal/store"
	"go.uber.org/zap"
)

const asPrescribed = "as prescribed"

// ComputeFireTime returns today's hour:minute:00 in now's location, or the
// same time a day later when that is not after now
func ComputeFireTime(hour, minute int, now time.Time) time.Time {
	fire := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !fire.After(now) {
		fire = fire.Add(24 * time.Hour)
	}
	return fire
}

// PlannedReminder is one (slot, medicine, dosage text) reminder to arm
type PlannedReminder struct {
	Slot           Slot   `json:"slot"`
	PrescriptionID string `json:"prescription_id"`
	MedicineName   string `json:"medicine_name"`
	Dosage         int    `json:"dosage"`
	DosageText     string `json:"dosage_text"`
}

// Planner computes fire times from the configured reminder times
type Planner struct {
	times  *Times
	now    func() time.Time
	logger *zap.Logger
}

func NewPlanner(times *Times, now func() time.Time, logger *zap.Logger) *Planner {
	if now == nil {
		now = time.Now
	}
	return &Planner{times: times, now: now, logger: logger}
}

// Now returns the planner's clock reading
func (p *Planner) Now() time.Time {
	return p.now()
}

// NextFire returns the next occurrence of slot after the current time
func (p *Planner) NextFire(slot Slot) time.Time {
	return p.NextFireAfter(slot, p.now())
}

// NextFireAfter returns the first occurrence of slot strictly after t
func (p *Planner) NextFireAfter(slot Slot, t time.Time) time.Time {
	ct, err := p.times.Get(slot)
	if err != nil {
		p.logger.Warn("Failed to read reminder time, using default",
			zap.String("slot", string(slot)),
			zap.Error(err),
		)
	}
	return ComputeFireTime(ct.Hour, ct.Minute, t)
}

// Plan lists the reminders a prescription needs, one per medicine and slot
// with a positive remaining dose
func (p *Planner) Plan(rx store.Prescription) []PlannedReminder {
	var out []PlannedReminder
	for _, m := range rx.Medicines {
		text := DosageText(m)
		for _, slot := range Slots {
			t := m.Timing(string(slot))
			if t == nil || t.Dosage <= 0 {
				continue
			}
			out = append(out, PlannedReminder{
				Slot:           slot,
				PrescriptionID: rx.ID,
				MedicineName:   m.DisplayName(),
				Dosage:         t.Dosage,
				DosageText:     text,
			})
		}
	}
	return out
}

// DosageText renders the remaining doses as "2 tablets in morning, 1 tablet
// at night", or "as prescribed" when no slot has a positive dose
func DosageText(m store.PrescriptionMedicine) string {
	unit := unitFor(m)

	var clauses []string
	for _, slot := range Slots {
		t := m.Timing(string(slot))
		if t == nil || t.Dosage <= 0 {
			continue
		}

		parts := []string{strconv.Itoa(t.Dosage)}
		if u := pluralize(unit, t.Dosage); u != "" {
			parts = append(parts, u)
		}
		parts = append(parts, slot.Phrase())
		clauses = append(clauses, strings.Join(parts, " "))
	}

	if len(clauses) == 0 {
		return asPrescribed
	}
	return strings.Join(clauses, ", ")
}

var unitKeywords = []struct {
	keywords []string
	unit     string
}{
	{[]string{"tablet", "capsule", "pill"}, "tablet"},
	{[]string{"syrup", "liquid", "suspension", "ml"}, "ml"},
	{[]string{"drop"}, "drop"},
	{[]string{"cream", "ointment", "gel", "lotion", "application"}, "application"},
	{[]string{"injection"}, "injection"},
	{[]string{"spray", "inhaler"}, "spray"},
	{[]string{"sachet", "powder"}, "sachet"},
}

// unitFor resolves the dose unit from the medicine type, falling back to
// the dosage unit type. Unrecognised types resolve to "".
func unitFor(m store.PrescriptionMedicine) string {
	if m.Type != nil && strings.TrimSpace(*m.Type) != "" {
		t := strings.ToLower(*m.Type)
		for _, k := range unitKeywords {
			for _, kw := range k.keywords {
				if strings.Contains(t, kw) {
					return k.unit
				}
			}
		}
		return ""
	}

	switch strings.ToUpper(m.DosageType) {
	case store.DosageTablet:
		return "tablet"
	case store.DosageVolume:
		return "ml"
	case store.DosageDrops:
		return "drop"
	}
	return ""
}

func pluralize(unit string, n int) string {
	if unit == "" || unit == "ml" || n == 1 {
		return unit
	}
	return unit + "s"
}
