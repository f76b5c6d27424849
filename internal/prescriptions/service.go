// Package prescriptions keeps the local prescription cache in step with the
// backend and warns about prescriptions that are about to expire.
package prescriptions

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/metrics"
	"github.com/Medi-Pal/medipal/internal/store"
	"go.uber.org/zap"
)

// Remote is the subset of the backend client the service needs
type Remote interface {
	FetchPrescriptionsForPhone(ctx context.Context, phone string) ([]store.Prescription, error)
	FetchPrescriptionByID(ctx context.Context, id string) (*store.Prescription, error)
	UpdateUsage(ctx context.Context, id, phone string) (*store.Prescription, error)
	FetchDoctors(ctx context.Context) ([]store.Doctor, error)
}

// Cache is the local prescription cache
type Cache interface {
	ListPrescriptions(ctx context.Context) ([]store.Prescription, error)
	GetPrescription(ctx context.Context, id string) (*store.Prescription, error)
	ReplacePrescriptions(ctx context.Context, ps ...store.Prescription) error
	UpsertPrescription(ctx context.Context, p *store.Prescription) error
	LockPrescription(id string) func()
	CurrentUser(ctx context.Context) (*store.User, error)
}

// Signal announces cache changes
type Signal interface {
	PrescriptionsChanged(prescriptionID string)
}

// Service syncs prescriptions for the signed-in patient
type Service struct {
	remote  Remote
	cache   Cache
	signal  Signal
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewService(remote Remote, cache Cache, signal Signal, logger *zap.Logger, m *metrics.Collector) *Service {
	return &Service{
		remote:  remote,
		cache:   cache,
		signal:  signal,
		logger:  logger,
		metrics: m,
	}
}

// Sync replaces the cache with the backend's prescriptions for the current
// user and returns how many were stored
func (s *Service) Sync(ctx context.Context) (n int, err error) {
	defer func() { s.metrics.SyncRun(err) }()

	phone, err := s.currentPhone(ctx)
	if err != nil {
		return 0, err
	}

	list, err := s.remote.FetchPrescriptionsForPhone(ctx, phone)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch prescriptions: %w", err)
	}

	if err := s.cache.ReplacePrescriptions(ctx, list...); err != nil {
		return 0, apperrors.ErrPersistFailed.WithCause(err)
	}

	s.logger.Info("Prescriptions synced",
		zap.String("phone_number", phone),
		zap.Int("count", len(list)),
	)
	s.signal.PrescriptionsChanged("")
	return len(list), nil
}

// Refresh re-fetches one prescription and upserts it. A prescription the
// backend no longer knows is left in place.
func (s *Service) Refresh(ctx context.Context, id string) (*store.Prescription, error) {
	p, err := s.remote.FetchPrescriptionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prescription %s: %w", id, err)
	}
	if p == nil {
		return nil, apperrors.ErrNotFound
	}

	unlock := s.cache.LockPrescription(id)
	err = s.cache.UpsertPrescription(ctx, p)
	unlock()
	if err != nil {
		return nil, apperrors.ErrPersistFailed.WithCause(err)
	}

	s.signal.PrescriptionsChanged(id)
	return p, nil
}

// ReportUsage tells the backend the patient used the prescription and
// stores the backend's copy
func (s *Service) ReportUsage(ctx context.Context, id string) (*store.Prescription, error) {
	phone, err := s.currentPhone(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.remote.UpdateUsage(ctx, id, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to report usage: %w", err)
	}

	unlock := s.cache.LockPrescription(id)
	err = s.cache.UpsertPrescription(ctx, p)
	unlock()
	if err != nil {
		return nil, apperrors.ErrPersistFailed.WithCause(err)
	}

	s.signal.PrescriptionsChanged(id)
	return p, nil
}

// List returns the cached prescriptions
func (s *Service) List(ctx context.Context) ([]store.Prescription, error) {
	return s.cache.ListPrescriptions(ctx)
}

// Get returns one cached prescription
func (s *Service) Get(ctx context.Context, id string) (*store.Prescription, error) {
	p, err := s.cache.GetPrescription(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

// Doctors lists the doctors known to the backend
func (s *Service) Doctors(ctx context.Context) ([]store.Doctor, error) {
	return s.remote.FetchDoctors(ctx)
}

func (s *Service) currentPhone(ctx context.Context) (string, error) {
	u, err := s.cache.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if u == nil || u.PhoneNumber == "" {
		return "", apperrors.ErrNoUser
	}
	return u.PhoneNumber, nil
}

// daysUntil counts calendar days from now to t in now's location
func daysUntil(now, t time.Time) int {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	y, m, d = t.In(now.Location()).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return int(math.Round(day.Sub(today).Hours() / 24))
}
