// Package api is the local control API: prescriptions, reminder settings,
// dose actions and a websocket event stream for a companion UI.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/Medi-Pal/medipal/internal/config"
	"github.com/Medi-Pal/medipal/internal/cron"
	"github.com/Medi-Pal/medipal/internal/metrics"
	"github.com/Medi-Pal/medipal/internal/notify"
	"github.com/Medi-Pal/medipal/internal/prescriptions"
	"github.com/Medi-Pal/medipal/internal/reconcile"
	"github.com/Medi-Pal/medipal/internal/reminder"
	"github.com/Medi-Pal/medipal/internal/remote"
	"github.com/Medi-Pal/medipal/internal/sos"
	"github.com/Medi-Pal/medipal/internal/store"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrescriptionService reads and syncs prescriptions
type PrescriptionService interface {
	List(ctx context.Context) ([]store.Prescription, error)
	Get(ctx context.Context, id string) (*store.Prescription, error)
	Sync(ctx context.Context) (int, error)
	Refresh(ctx context.Context, id string) (*store.Prescription, error)
	ReportUsage(ctx context.Context, id string) (*store.Prescription, error)
	Doctors(ctx context.Context) ([]store.Doctor, error)
}

// Authenticator runs the backend OTP login
type Authenticator interface {
	SendOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, phone, code string) (*remote.Session, error)
}

// Sessions persists the backend session
type Sessions interface {
	Save(sess remote.Session) error
	Clear() error
}

// Scheduler arms and cancels reminders
type Scheduler interface {
	ScheduleAllForMedicine(ctx context.Context, prescriptionID, medicineName, dosageText string) error
	Cancel(ctx context.Context, prescriptionID string) error
	Toggle(ctx context.Context, prescriptionID, medicineName, dosageText string) (bool, error)
	CancelAll() int
	Pending() []reminder.Job
}

// Restorer re-arms reminders after a restart
type Restorer interface {
	Restore(ctx context.Context) reminder.RestoreReport
}

// Reconciler applies mark-taken actions
type Reconciler interface {
	MarkTaken(ctx context.Context, req reconcile.Request) reconcile.Result
}

// Alerter sends SOS messages
type Alerter interface {
	SendSOS(ctx context.Context, medicineName string) (sos.Report, error)
}

// ExpiryChecker reports expiring prescriptions
type ExpiryChecker interface {
	Check(ctx context.Context, now time.Time) ([]prescriptions.Expiring, error)
}

// Deps are the services the API exposes
type Deps struct {
	Config        *config.Config
	Store         *store.Store
	Prescriptions PrescriptionService
	Auth          Authenticator
	Sessions      Sessions
	Times         *reminder.Times
	Flags         *reminder.Flags
	Scheduler     Scheduler
	Restorer      Restorer
	Reconciler    Reconciler
	Alerter       Alerter
	Expiry        ExpiryChecker
	Cron          *cron.Runner
	Broadcaster   *notify.Broadcaster
	Gatherer      prometheus.Gatherer
	Metrics       *metrics.Collector
	Logger        *zap.Logger
}

// Server handles HTTP API and WebSocket
type Server struct {
	app    *fiber.App
	config *config.Config
	deps   Deps
	ws     *WSSink
	logger *zap.Logger
}

// New creates a new API server
func New(deps Deps) *Server {
	cfg := deps.Config

	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:    app,
		config: cfg,
		deps:   deps,
		ws:     NewWSSink(deps.Logger),
		logger: deps.Logger,
	}

	s.setupRoutes()
	return s
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Sink returns the websocket notice sink to register on the hub
func (s *Server) Sink() *WSSink {
	return s.ws
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.logger.Info("Local API listening", zap.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
