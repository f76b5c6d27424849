package store

import (
	"strings"
	"time"
)

// Dosage unit types used by the backend
const (
	DosageVolume = "VOLUME"
	DosageDrops  = "DROPS"
	DosageTablet = "TABLET"
)

// Prescription mirrors a backend prescription in the local cache
type Prescription struct {
	ID          string                 `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time              `json:"created_at"`
	ExpiryDate  string                 `json:"expiry_date,omitempty"`
	Medicines   []PrescriptionMedicine `gorm:"serializer:json;type:text" json:"medicines"`
	Doctor      Doctor                 `gorm:"serializer:json;type:text" json:"doctor"`
	PhoneNumber string                 `gorm:"index" json:"phone_number"`
	Diagnosis   string                 `json:"diagnosis"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// PrescriptionMedicine is one medicine line of a prescription
type PrescriptionMedicine struct {
	MedicineID  int64            `json:"medicine_id"`
	BrandName   string           `json:"brand_name"`
	DrugName    string           `json:"drug_name"`
	Type        *string          `json:"type,omitempty"`
	Description *string          `json:"description,omitempty"`
	Instruction *string          `json:"instruction,omitempty"`
	DosageType  string           `json:"dosage_type"` // VOLUME, DROPS, TABLET
	Dosage      int              `json:"dosage"`
	Duration    *int             `json:"duration,omitempty"`
	Timings     []MedicineTiming `json:"timings"`
}

// MedicineTiming is the remaining dose count for one time of day
type MedicineTiming struct {
	TimeOfDay string `json:"time_of_day"`
	Dosage    int    `json:"dosage"`
}

// Doctor is the prescribing doctor record
type Doctor struct {
	RegistrationNo string `json:"registration_no"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	Clinic         string `json:"clinic,omitempty"`
}

// User is the locally signed-in patient profile
type User struct {
	PhoneNumber string    `gorm:"primaryKey" json:"phone_number"`
	Name        string    `json:"name"`
	Age         int       `json:"age,omitempty"`
	BloodGroup  string    `json:"blood_group,omitempty"`
	Current     bool      `gorm:"column:is_current;index" json:"current"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EmergencyContact receives SOS messages
type EmergencyContact struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// DisplayName returns the brand name, or the drug name when no brand is set
func (m PrescriptionMedicine) DisplayName() string {
	if m.BrandName != "" {
		return m.BrandName
	}
	return m.DrugName
}

// MatchesName reports whether name equals the drug or brand name, ignoring case
func (m PrescriptionMedicine) MatchesName(name string) bool {
	return strings.EqualFold(m.DrugName, name) || strings.EqualFold(m.BrandName, name)
}

// Timing returns the timing entry for timeOfDay, ignoring case
func (m *PrescriptionMedicine) Timing(timeOfDay string) *MedicineTiming {
	for i := range m.Timings {
		if strings.EqualFold(m.Timings[i].TimeOfDay, timeOfDay) {
			return &m.Timings[i]
		}
	}
	return nil
}

// TotalDosage sums the remaining doses across all timings
func (m PrescriptionMedicine) TotalDosage() int {
	total := 0
	for _, t := range m.Timings {
		total += t.Dosage
	}
	return total
}

// Medicine returns the first medicine matching name
func (p *Prescription) Medicine(name string) *PrescriptionMedicine {
	for i := range p.Medicines {
		if p.Medicines[i].MatchesName(name) {
			return &p.Medicines[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without touching shared slices
func (p Prescription) Clone() Prescription {
	out := p
	out.Medicines = make([]PrescriptionMedicine, len(p.Medicines))
	for i, m := range p.Medicines {
		cm := m
		cm.Timings = append([]MedicineTiming(nil), m.Timings...)
		if m.Duration != nil {
			d := *m.Duration
			cm.Duration = &d
		}
		out.Medicines[i] = cm
	}
	return out
}
