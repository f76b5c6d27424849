package api

import (
	"bytes"
	"errors"
	"strings"
	"time"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/reconcile"
	"github.com/Medi-Pal/medipal/internal/reminder"
	"github.com/Medi-Pal/medipal/internal/security"
	"github.com/Medi-Pal/medipal/internal/store"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var version = "0.1.0"

var errNoMedicines = errors.New("prescription has no medicines")

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   version,
		"timestamp": time.Now().Unix(),
	})
}

// ==================== Auth ====================

func (s *Server) handleSendOTP(c *fiber.Ctx) error {
	var req otpSendRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.PhoneNumber) == "" {
		return c.Status(400).JSON(fiber.Map{"error": "phone_number is required"})
	}
	phone, err := security.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return err
	}

	if err := s.deps.Auth.SendOTP(c.UserContext(), phone); err != nil {
		s.logger.Warn("Failed to send OTP", zap.Error(err))
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleVerifyOTP(c *fiber.Ctx) error {
	var req otpVerifyRequest
	if err := c.BodyParser(&req); err != nil || req.PhoneNumber == "" || req.OTP == "" {
		return c.Status(400).JSON(fiber.Map{"error": "phone_number and otp are required"})
	}
	phone, err := security.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return err
	}

	sess, err := s.deps.Auth.VerifyOTP(c.UserContext(), phone, req.OTP)
	if err != nil {
		return err
	}
	if err := s.deps.Sessions.Save(*sess); err != nil {
		return apperrors.ErrPersistFailed.WithCause(err)
	}

	user := sess.User
	if err := s.deps.Store.SaveUser(c.UserContext(), &user); err != nil {
		return apperrors.ErrPersistFailed.WithCause(err)
	}

	token, expires, err := s.issueToken(user.PhoneNumber)
	if err != nil {
		return err
	}

	s.logger.Info("Patient signed in", zap.String("phone_number", user.PhoneNumber))
	return c.JSON(loginResponse{Token: token, ExpiresAt: expires, User: user})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if err := s.deps.Sessions.Clear(); err != nil {
		return err
	}
	if err := s.deps.Store.SignOut(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ==================== Profile ====================

func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	u, err := s.deps.Store.CurrentUser(c.UserContext())
	if err != nil {
		return err
	}
	if u == nil {
		return apperrors.ErrNoUser
	}
	return c.JSON(u)
}

func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	u, err := s.deps.Store.CurrentUser(c.UserContext())
	if err != nil {
		return err
	}
	if u == nil {
		return apperrors.ErrNoUser
	}

	if req.Name != "" {
		if err := security.ValidateName("name", req.Name); err != nil {
			return err
		}
		u.Name = strings.TrimSpace(req.Name)
	}
	if req.Age > 0 {
		u.Age = req.Age
	}
	if req.BloodGroup != "" {
		u.BloodGroup = req.BloodGroup
	}
	if err := s.deps.Store.SaveUser(c.UserContext(), u); err != nil {
		return err
	}
	return c.JSON(u)
}

// ==================== Prescriptions ====================

func (s *Server) handleListPrescriptions(c *fiber.Ctx) error {
	list, err := s.deps.Prescriptions.List(c.UserContext())
	if err != nil {
		s.logger.Error("Failed to list prescriptions", zap.Error(err))
		return err
	}
	if list == nil {
		list = []store.Prescription{}
	}
	return c.JSON(list)
}

func (s *Server) handleSyncPrescriptions(c *fiber.Ctx) error {
	n, err := s.deps.Prescriptions.Sync(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"synced": n})
}

func (s *Server) handleGetPrescription(c *fiber.Ctx) error {
	p, err := s.deps.Prescriptions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *Server) handleRefreshPrescription(c *fiber.Ctx) error {
	p, err := s.deps.Prescriptions.Refresh(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *Server) handleReportUsage(c *fiber.Ctx) error {
	p, err := s.deps.Prescriptions.ReportUsage(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *Server) handleExpiring(c *fiber.Ctx) error {
	list, err := s.deps.Expiry.Check(c.UserContext(), time.Now())
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) handleListDoctors(c *fiber.Ctx) error {
	doctors, err := s.deps.Prescriptions.Doctors(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(doctors)
}

// ==================== Reminders ====================

// medicineFor picks the named medicine of the prescription, or its first
// medicine when no name is given
func (s *Server) medicineFor(c *fiber.Ctx, name string) (*store.Prescription, *store.PrescriptionMedicine, error) {
	p, err := s.deps.Prescriptions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, nil, err
	}
	if len(p.Medicines) == 0 {
		return nil, nil, apperrors.ErrBadRequest.WithCause(errNoMedicines)
	}
	if name == "" {
		return p, &p.Medicines[0], nil
	}
	m := p.Medicine(name)
	if m == nil {
		return nil, nil, apperrors.ErrNotFound
	}
	return p, m, nil
}

func (s *Server) handleGetReminderFlag(c *fiber.Ctx) error {
	id := c.Params("id")
	enabled, err := s.deps.Flags.IsEnabled(id)
	if err != nil {
		return err
	}
	return c.JSON(reminderState{PrescriptionID: id, Enabled: enabled})
}

func (s *Server) handleScheduleReminders(c *fiber.Ctx) error {
	var req scheduleRequest
	if !parseOptionalBody(c, &req) {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	p, m, err := s.medicineFor(c, req.MedicineName)
	if err != nil {
		return err
	}
	if err := s.deps.Scheduler.ScheduleAllForMedicine(c.UserContext(), p.ID, m.DisplayName(), reminder.DosageText(*m)); err != nil {
		return err
	}
	return c.JSON(reminderState{PrescriptionID: p.ID, Enabled: true})
}

func (s *Server) handleCancelReminders(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.deps.Scheduler.Cancel(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(reminderState{PrescriptionID: id, Enabled: false})
}

func (s *Server) handleToggleReminders(c *fiber.Ctx) error {
	var req scheduleRequest
	if !parseOptionalBody(c, &req) {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	p, m, err := s.medicineFor(c, req.MedicineName)
	if err != nil {
		return err
	}
	enabled, err := s.deps.Scheduler.Toggle(c.UserContext(), p.ID, m.DisplayName(), reminder.DosageText(*m))
	if err != nil {
		return err
	}
	return c.JSON(reminderState{PrescriptionID: p.ID, Enabled: enabled})
}

func (s *Server) handleListReminders(c *fiber.Ctx) error {
	jobs := s.deps.Scheduler.Pending()
	out := make([]pendingReminder, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, pendingReminder{
			Slot:           j.Payload.Slot,
			FireAt:         j.FireAt,
			PrescriptionID: j.Payload.PrescriptionID,
			MedicineName:   j.Payload.MedicineName,
			Dosage:         j.Payload.Dosage,
		})
	}
	return c.JSON(out)
}

func (s *Server) handleCancelAllReminders(c *fiber.Ctx) error {
	n := s.deps.Scheduler.CancelAll()
	return c.JSON(fiber.Map{"cancelled": n})
}

func (s *Server) handleGetTimes(c *fiber.Ctx) error {
	out := make([]slotTime, 0, len(reminder.Slots))
	for _, slot := range reminder.Slots {
		ct, err := s.deps.Times.Get(slot)
		if err != nil {
			s.logger.Warn("Failed to read reminder time", zap.String("slot", string(slot)), zap.Error(err))
		}
		out = append(out, slotTime{Slot: slot, Hour: ct.Hour, Minute: ct.Minute, Display: ct.String()})
	}
	return c.JSON(out)
}

func (s *Server) handleSetTime(c *fiber.Ctx) error {
	slot, err := reminder.ParseSlot(c.Params("slot"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	var req setTimeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Hour < 0 || req.Hour > 23 || req.Minute < 0 || req.Minute > 59 {
		return c.Status(400).JSON(fiber.Map{"error": "hour must be 0-23 and minute 0-59"})
	}

	if err := s.deps.Times.Set(slot, req.Hour, req.Minute); err != nil {
		return err
	}
	ct := reminder.ClockTime{Hour: req.Hour, Minute: req.Minute}
	return c.JSON(slotTime{Slot: slot, Hour: ct.Hour, Minute: ct.Minute, Display: ct.String()})
}

// ==================== Doses ====================

func (s *Server) handleDoseTaken(c *fiber.Ctx) error {
	var req reconcile.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	res := s.deps.Reconciler.MarkTaken(c.UserContext(), req)
	status := fiber.StatusOK
	switch res.Outcome {
	case reconcile.Invalid:
		status = fiber.StatusBadRequest
	case reconcile.NotFound:
		status = fiber.StatusNotFound
	case reconcile.PersistFailed:
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(res)
}

// ==================== System ====================

// handleBoot is the boot-completed signal: re-arm enabled reminders
func (s *Server) handleBoot(c *fiber.Ctx) error {
	report := s.deps.Restorer.Restore(c.UserContext())
	return c.JSON(report)
}

func (s *Server) handleListJobs(c *fiber.Ctx) error {
	if s.deps.Cron == nil {
		return c.JSON([]any{})
	}
	return c.JSON(s.deps.Cron.ListJobs())
}

// ==================== SOS ====================

func (s *Server) handleSOS(c *fiber.Ctx) error {
	var req sosRequest
	if !parseOptionalBody(c, &req) {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	report, err := s.deps.Alerter.SendSOS(c.UserContext(), req.MedicineName)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func (s *Server) handleListContacts(c *fiber.Ctx) error {
	list, err := s.deps.Store.ListContacts(c.UserContext())
	if err != nil {
		return err
	}
	if list == nil {
		list = []store.EmergencyContact{}
	}
	return c.JSON(list)
}

func (s *Server) handleAddContact(c *fiber.Ctx) error {
	var req contactRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" || req.PhoneNumber == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name and phone_number are required"})
	}
	if err := security.ValidateName("name", req.Name); err != nil {
		return err
	}
	phone, err := security.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return err
	}

	contact := &store.EmergencyContact{Name: strings.TrimSpace(req.Name), PhoneNumber: phone}
	if err := s.deps.Store.AddContact(c.UserContext(), contact); err != nil {
		return err
	}
	return c.Status(201).JSON(contact)
}

func (s *Server) handleDeleteContact(c *fiber.Ctx) error {
	if err := s.deps.Store.DeleteContact(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(204)
}

// parseOptionalBody accepts an empty body and rejects one that does not parse
func parseOptionalBody(c *fiber.Ctx, out interface{}) bool {
	if len(bytes.TrimSpace(c.Body())) == 0 {
		return true
	}
	return c.BodyParser(out) == nil
}
