package remote

import (
	"time"

	"github.com/Medi-Pal/medipal/internal/store"
)

// Wire formats of the prescription backend

type prescriptionDTO struct {
	PrescriptionID string        `json:"prescriptionId"`
	CreatedAt      time.Time     `json:"createdAt"`
	ExpiryDate     string        `json:"expiryDate,omitempty"`
	MedicineList   []medicineDTO `json:"medicineList"`
	Doctor         doctorDTO     `json:"doctor"`
	PhoneNumber    string        `json:"phoneNumber"`
	Diagnosis      string        `json:"diagnosis"`
}

type medicineDTO struct {
	MedicineID  int64       `json:"medicineId"`
	BrandName   string      `json:"brandName"`
	DrugName    string      `json:"drugName"`
	Type        *string     `json:"type,omitempty"`
	Description *string     `json:"description,omitempty"`
	Instruction *string     `json:"instruction,omitempty"`
	DosageType  string      `json:"dosageType"`
	Dosage      int         `json:"dosage"`
	Duration    *int        `json:"duration,omitempty"`
	Timings     []timingDTO `json:"timings"`
}

type timingDTO struct {
	TimeOfDay string `json:"timeOfDay"`
	Dosage    int    `json:"dosage"`
}

type doctorDTO struct {
	RegistrationNo string `json:"registrationNo"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	ClinicAddress  string `json:"clinicAddress,omitempty"`
}

type userDTO struct {
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name"`
	Age         int    `json:"age,omitempty"`
	BloodGroup  string `json:"bloodGroup,omitempty"`
}

type otpRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp,omitempty"`
}

type otpResponse struct {
	Token     string  `json:"token"`
	ExpiresIn int64   `json:"expiresIn"`
	User      userDTO `json:"user"`
}

type usageRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

func (d prescriptionDTO) toModel() store.Prescription {
	p := store.Prescription{
		ID:          d.PrescriptionID,
		CreatedAt:   d.CreatedAt,
		ExpiryDate:  d.ExpiryDate,
		Doctor:      d.Doctor.toModel(),
		PhoneNumber: d.PhoneNumber,
		Diagnosis:   d.Diagnosis,
		Medicines:   make([]store.PrescriptionMedicine, 0, len(d.MedicineList)),
	}
	for _, m := range d.MedicineList {
		med := store.PrescriptionMedicine{
			MedicineID:  m.MedicineID,
			BrandName:   m.BrandName,
			DrugName:    m.DrugName,
			Type:        m.Type,
			Description: m.Description,
			Instruction: m.Instruction,
			DosageType:  m.DosageType,
			Dosage:      m.Dosage,
			Duration:    m.Duration,
			Timings:     make([]store.MedicineTiming, 0, len(m.Timings)),
		}
		for _, t := range m.Timings {
			med.Timings = append(med.Timings, store.MedicineTiming{TimeOfDay: t.TimeOfDay, Dosage: t.Dosage})
		}
		p.Medicines = append(p.Medicines, med)
	}
	return p
}

func (d doctorDTO) toModel() store.Doctor {
	return store.Doctor{
		RegistrationNo: d.RegistrationNo,
		Name:           d.Name,
		Specialization: d.Specialization,
		PhoneNumber:    d.PhoneNumber,
		Clinic:         d.ClinicAddress,
	}
}

func (d userDTO) toModel() store.User {
	return store.User{
		PhoneNumber: d.PhoneNumber,
		Name:        d.Name,
		Age:         d.Age,
		BloodGroup:  d.BloodGroup,
	}
}
