package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	s.app.Use(s.metricsMiddleware())

	s.app.Get("/api/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.app.Group("/api")

	api.Post("/auth/otp/send", s.handleSendOTP)
	api.Post("/auth/otp/verify", s.handleVerifyOTP)

	protected := api.Use(s.authMiddleware())

	protected.Post("/auth/logout", s.handleLogout)

	protected.Get("/profile", s.handleGetProfile)
	protected.Put("/profile", s.handleUpdateProfile)

	protected.Get("/prescriptions", s.handleListPrescriptions)
	protected.Post("/prescriptions/sync", s.handleSyncPrescriptions)
	protected.Get("/prescriptions/expiring", s.handleExpiring)
	protected.Get("/prescriptions/:id", s.handleGetPrescription)
	protected.Post("/prescriptions/:id/refresh", s.handleRefreshPrescription)
	protected.Post("/prescriptions/:id/usage", s.handleReportUsage)

	protected.Get("/prescriptions/:id/reminders", s.handleGetReminderFlag)
	protected.Post("/prescriptions/:id/reminders", s.handleScheduleReminders)
	protected.Delete("/prescriptions/:id/reminders", s.handleCancelReminders)
	protected.Post("/prescriptions/:id/reminders/toggle", s.handleToggleReminders)

	protected.Get("/doctors", s.handleListDoctors)

	protected.Get("/reminders", s.handleListReminders)
	protected.Delete("/reminders", s.handleCancelAllReminders)
	protected.Get("/reminders/times", s.handleGetTimes)
	protected.Put("/reminders/times/:slot", s.handleSetTime)

	protected.Post("/doses/taken", s.handleDoseTaken)

	protected.Post("/system/boot", s.handleBoot)
	protected.Get("/system/jobs", s.handleListJobs)

	protected.Post("/sos", s.handleSOS)
	protected.Get("/contacts", s.handleListContacts)
	protected.Post("/contacts", s.handleAddContact)
	protected.Delete("/contacts/:id", s.handleDeleteContact)

	s.app.Use("/ws", s.authMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}
