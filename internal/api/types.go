package api

import (
	"time"

	"github.com/Medi-Pal/medipal/internal/reminder"
	"github.com/Medi-Pal/medipal/internal/store"
)

type otpSendRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type otpVerifyRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      store.User `json:"user"`
}

type profileRequest struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	BloodGroup string `json:"blood_group"`
}

type scheduleRequest struct {
	MedicineName string `json:"medicine_name"`
}

type reminderState struct {
	PrescriptionID string `json:"prescription_id"`
	Enabled        bool   `json:"enabled"`
}

type pendingReminder struct {
	Slot           reminder.Slot `json:"slot"`
	FireAt         time.Time     `json:"fire_at"`
	PrescriptionID string        `json:"prescription_id"`
	MedicineName   string        `json:"medicine_name"`
	Dosage         string        `json:"dosage"`
}

type slotTime struct {
	Slot    reminder.Slot `json:"slot"`
	Hour    int           `json:"hour"`
	Minute  int           `json:"minute"`
	Display string        `json:"display"`
}

type setTimeRequest struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

type sosRequest struct {
	MedicineName string `json:"medicine_name"`
}

type contactRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}
