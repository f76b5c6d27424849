// Package app wires the reminder core, its services and the outer surfaces
// into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Medi-Pal/medipal/internal/api"
	"github.com/Medi-Pal/medipal/internal/channels/telegram"
	"github.com/Medi-Pal/medipal/internal/config"
	"github.com/Medi-Pal/medipal/internal/cron"
	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/logging"
	"github.com/Medi-Pal/medipal/internal/metrics"
	"github.com/Medi-Pal/medipal/internal/notify"
	"github.com/Medi-Pal/medipal/internal/prescriptions"
	"github.com/Medi-Pal/medipal/internal/reconcile"
	"github.com/Medi-Pal/medipal/internal/reminder"
	"github.com/Medi-Pal/medipal/internal/remote"
	"github.com/Medi-Pal/medipal/internal/sos"
	"github.com/Medi-Pal/medipal/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App holds every long-lived component of the process
type App struct {
	Config     *config.Config
	ConfigPath string
	Store      *store.Store
	Logger     *zap.Logger
	LogLevel   zap.AtomicLevel
	Version    string

	Registry *prometheus.Registry
	Metrics  *metrics.Collector

	Dispatcher  *notify.Dispatcher
	Hub         *notify.Hub
	Broadcaster *notify.Broadcaster

	Times     *reminder.Times
	Flags     *reminder.Flags
	Planner   *reminder.Planner
	Scheduler *reminder.Scheduler
	Restorer  *reminder.Restorer

	Sessions      *remote.SessionStore
	Remote        *remote.Client
	Prescriptions *prescriptions.Service
	Expiry        *prescriptions.ExpiryChecker
	Reconciler    *reconcile.Reconciler
	Alerter       *sos.Alerter

	CronRunner  *cron.Runner
	TelegramBot *telegram.Bot

	ctx    context.Context
	cancel context.CancelFunc
}

// Options carries what the caller already built
type Options struct {
	ConfigPath string
	LogLevel   zap.AtomicLevel
	Version    string
	Now        func() time.Time
	SMS        sos.SMSSender
}

// New wires the reminder core over st. Nothing talks to the network until
// a service is used.
func New(cfg *config.Config, st *store.Store, logger *zap.Logger, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &App{
		Config:     cfg,
		ConfigPath: opts.ConfigPath,
		Store:      st,
		Logger:     logger,
		LogLevel:   opts.LogLevel,
		Version:    opts.Version,
		Registry:   reg,
		Metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
	}

	a.Dispatcher = notify.NewDispatcher(cfg.Reminders.InteractionBuffer, logger)
	a.Hub = notify.NewHub(a.Dispatcher, logger)
	a.Hub.AddSink(notify.NewLogSink(logger))
	a.Broadcaster = notify.NewBroadcaster()

	kv := st.KV()
	a.Times = reminder.NewTimes(kv)
	a.Flags = reminder.NewFlags(kv)
	a.Planner = reminder.NewPlanner(a.Times, opts.Now, logger)
	a.Scheduler = reminder.NewScheduler(ctx, reminder.SchedulerConfig{
		Planner:       a.Planner,
		Flags:         a.Flags,
		Deliverer:     reminder.NewWorker(a.Hub, logger, m),
		Logger:        logger,
		Metrics:       m,
		DailyRollover: cfg.Reminders.DailyRollover,
	})
	a.Restorer = reminder.NewRestorer(st, a.Flags, a.Scheduler, logger, m)

	a.Sessions = remote.NewSessionStore(kv)
	a.Remote = remote.NewClient(remote.OptionsFromConfig(cfg.Remote), a.Sessions, logger, m)
	a.Prescriptions = prescriptions.NewService(a.Remote, st, a.Broadcaster, logger, m)
	a.Expiry = prescriptions.NewExpiryChecker(st, a.Hub, kv, cfg.Expiry.WarnDays, logger)

	a.Reconciler = reconcile.New(reconcile.Config{
		Cache:          st,
		Remote:         a.Remote,
		Toaster:        a.Hub,
		Signal:         a.Broadcaster,
		Logger:         logger,
		Metrics:        m,
		RefreshTimeout: time.Duration(cfg.Remote.TimeoutSeconds) * time.Second,
	})

	sms := opts.SMS
	if sms == nil {
		sms = sos.NewHTTPGateway(cfg.SOS, logger)
	}
	a.Alerter = sos.NewAlerter(st, sms, logger, m)

	a.CronRunner = cron.NewRunner(cron.Config{}, logger)

	return a
}

// Start launches the interaction dispatcher
func (a *App) Start() {
	a.Dispatcher.Start()
}

// Close retracts armed reminders and drains background work
func (a *App) Close() {
	a.cancel()
	a.Scheduler.Close()
	a.Reconciler.Wait()
	a.Dispatcher.Stop()
}

// Boot is the boot-completed handling: re-arm every enabled reminder
func (a *App) Boot(ctx context.Context) reminder.RestoreReport {
	report := a.Restorer.Restore(ctx)
	a.Logger.Info("Reminders restored",
		zap.Int("scanned", report.Scanned),
		zap.Int("restored", report.Restored),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}

// RegisterJobs adds the periodic sync and expiry jobs to the cron runner
func (a *App) RegisterJobs() error {
	if a.Config.Sync.Enabled {
		if err := a.CronRunner.AddJob("prescription_sync", a.Config.Sync.Schedule, a.syncJob); err != nil {
			return err
		}
	}
	if a.Config.Expiry.Enabled {
		if err := a.CronRunner.AddJob("expiry_check", a.Config.Expiry.Schedule, a.expiryJob); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) syncJob(ctx context.Context) error {
	if a.Config.RequireRemote() != nil {
		a.Logger.Debug("Skipping sync, no backend configured")
		return nil
	}
	_, err := a.Prescriptions.Sync(ctx)
	if errors.Is(err, apperrors.ErrNoUser) {
		a.Logger.Debug("Skipping sync, nobody signed in")
		return nil
	}
	return err
}

func (a *App) expiryJob(ctx context.Context) error {
	_, err := a.Expiry.Check(ctx, a.Planner.Now())
	return err
}

// watchCache keeps the pending gauge current as the cache changes
func (a *App) watchCache(ctx context.Context) {
	for snapshot := range a.Store.WatchPrescriptions(ctx) {
		a.Metrics.SetPending(len(a.Scheduler.Pending()))
		a.Logger.Debug("Prescription cache changed", zap.Int("prescriptions", len(snapshot)))
	}
}

// APIServer builds the local control API over the app's services
func (a *App) APIServer() *api.Server {
	return api.New(api.Deps{
		Config:        a.Config,
		Store:         a.Store,
		Prescriptions: a.Prescriptions,
		Auth:          a.Remote,
		Sessions:      a.Sessions,
		Times:         a.Times,
		Flags:         a.Flags,
		Scheduler:     a.Scheduler,
		Restorer:      a.Restorer,
		Reconciler:    a.Reconciler,
		Alerter:       a.Alerter,
		Expiry:        a.Expiry,
		Cron:          a.CronRunner,
		Broadcaster:   a.Broadcaster,
		Gatherer:      a.Registry,
		Metrics:       a.Metrics,
		Logger:        a.Logger,
	})
}

// RunServer runs the reminder service until SIGINT or SIGTERM
func (a *App) RunServer() error {
	a.Start()
	defer a.Close()

	ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.ConfigPath != "" {
		if _, err := os.Stat(a.ConfigPath); err == nil {
			config.Watch(a.ConfigPath, a.applyConfig, func(err error) {
				a.Logger.Warn("Config watch error", zap.Error(err))
			})
		}
	}

	a.Boot(ctx)
	go a.watchCache(ctx)

	if err := a.RegisterJobs(); err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}
	if err := a.CronRunner.Start(); err != nil {
		a.Logger.Error("Failed to start cron runner", zap.Error(err))
	}
	defer a.CronRunner.Stop()

	if a.Config.Telegram.Enabled {
		bot, err := telegram.NewBot(telegram.Config{
			Token:   a.Config.Telegram.BotToken,
			Enabled: true,
			ChatID:  a.Config.Telegram.ChatID,
		}, telegram.Deps{
			Reconciler:    a.Reconciler,
			Alerter:       a.Alerter,
			State:         a.Store.KV(),
			Prescriptions: a.Store,
		}, a.Logger)
		if err != nil {
			a.Logger.Error("Failed to create Telegram bot", zap.Error(err))
		} else if err := bot.Start(); err != nil {
			a.Logger.Error("Failed to start Telegram bot", zap.Error(err))
		} else {
			a.TelegramBot = bot
			a.Hub.AddSink(bot)
			defer bot.Stop()
			a.Logger.Info("Telegram bot started")
		}
	}

	server := a.APIServer()
	a.Hub.AddSink(server.Sink())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	a.Logger.Info("MediPal started",
		zap.String("version", a.Version),
		zap.String("address", a.Config.Server.Address),
		zap.Int("port", a.Config.Server.Port),
		zap.Int("pending_reminders", len(a.Scheduler.Pending())),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	a.Logger.Info("Shutting down...")
	if err := server.Shutdown(); err != nil {
		a.Logger.Error("Server shutdown error", zap.Error(err))
	}
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	if err := logging.Apply(a.LogLevel, cfg.Log); err != nil {
		a.Logger.Warn("Ignoring invalid log level", zap.Error(err))
		return
	}
	a.Logger.Info("Config reloaded", zap.String("log_level", cfg.Log.Level))
}
