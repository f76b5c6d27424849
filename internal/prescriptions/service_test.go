package prescriptions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/notify"
	"github.com/Medi-Pal/medipal/internal/store"
	"github.com/Medi-Pal/medipal/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRemote struct {
	forPhone []store.Prescription
	byID     *store.Prescription
	err      error
	doctors  []store.Doctor

	usageCalls []string
}

func (f *fakeRemote) FetchPrescriptionsForPhone(context.Context, string) ([]store.Prescription, error) {
	return f.forPhone, f.err
}

func (f *fakeRemote) FetchPrescriptionByID(context.Context, string) (*store.Prescription, error) {
	return f.byID, f.err
}

func (f *fakeRemote) UpdateUsage(_ context.Context, id, phone string) (*store.Prescription, error) {
	f.usageCalls = append(f.usageCalls, id+"|"+phone)
	if f.err != nil {
		return nil, f.err
	}
	p := storetest.Prescription(id, phone, "Used", "tablet")
	return &p, nil
}

func (f *fakeRemote) FetchDoctors(context.Context) ([]store.Doctor, error) {
	return f.doctors, f.err
}

type signals struct {
	mu  sync.Mutex
	ids []string
}

func (s *signals) PrescriptionsChanged(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
}

func newService(t *testing.T, remote *fakeRemote) (*Service, *store.Store, *signals) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	s := storetest.New(t)
	sig := &signals{}
	return NewService(remote, s, sig, logger, nil), s, sig
}

func TestService_SyncRequiresUser(t *testing.T) {
	svc, _, _ := newService(t, &fakeRemote{})

	_, err := svc.Sync(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNoUser)
}

func TestService_SyncReplacesCache(t *testing.T) {
	remote := &fakeRemote{forPhone: []store.Prescription{
		storetest.Prescription("P2", "+911", "B", "tablet"),
		storetest.Prescription("P3", "+911", "C", "syrup"),
	}}
	svc, s, sig := newService(t, remote)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, &store.User{PhoneNumber: "+911"}))
	old := storetest.Prescription("P1", "+911", "A", "tablet")
	require.NoError(t, s.UpsertPrescription(ctx, &old))

	n, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{"P2", "P3"}, ids)
	assert.Equal(t, []string{""}, sig.ids)
}

func TestService_SyncKeepsCacheOnRemoteFailure(t *testing.T) {
	remote := &fakeRemote{err: apperrors.ErrRemoteUnavailable}
	svc, s, sig := newService(t, remote)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, &store.User{PhoneNumber: "+911"}))
	old := storetest.Prescription("P1", "+911", "A", "tablet")
	require.NoError(t, s.UpsertPrescription(ctx, &old))

	_, err := svc.Sync(ctx)
	assert.ErrorIs(t, err, apperrors.ErrRemoteUnavailable)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Empty(t, sig.ids)
}

func TestService_Refresh(t *testing.T) {
	fresh := storetest.Prescription("P1", "+911", "A", "tablet", store.MedicineTiming{TimeOfDay: "night", Dosage: 4})
	svc, s, sig := newService(t, &fakeRemote{byID: &fresh})
	ctx := context.Background()

	p, err := svc.Refresh(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", p.ID)

	got, err := s.GetPrescription(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.Medicines[0].Timing("night").Dosage)
	assert.Equal(t, []string{"P1"}, sig.ids)
}

func TestService_RefreshUnknown(t *testing.T) {
	svc, _, _ := newService(t, &fakeRemote{})

	_, err := svc.Refresh(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestService_ReportUsage(t *testing.T) {
	remote := &fakeRemote{}
	svc, s, _ := newService(t, remote)
	ctx := context.Background()

	_, err := svc.ReportUsage(ctx, "P9")
	assert.ErrorIs(t, err, apperrors.ErrNoUser)

	require.NoError(t, s.SaveUser(ctx, &store.User{PhoneNumber: "+911"}))
	p, err := svc.ReportUsage(ctx, "P9")
	require.NoError(t, err)
	assert.Equal(t, "P9", p.ID)
	assert.Equal(t, []string{"P9|+911"}, remote.usageCalls)

	got, err := svc.Get(ctx, "P9")
	require.NoError(t, err)
	assert.Equal(t, "Used", got.Medicines[0].DrugName)
}

func TestService_GetMissing(t *testing.T) {
	svc, _, _ := newService(t, &fakeRemote{})

	_, err := svc.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

type recordingNotices struct {
	notices []notify.Notice
}

func (r *recordingNotices) Show(_ context.Context, n notify.Notice) error {
	r.notices = append(r.notices, n)
	return nil
}

func TestExpiryChecker_Check(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	s := storetest.New(t)
	ctx := context.Background()

	mk := func(id, expiry string) store.Prescription {
		p := storetest.Prescription(id, "+911", "A", "tablet")
		p.ExpiryDate = expiry
		return p
	}
	require.NoError(t, s.UpsertPrescriptions(ctx, []store.Prescription{
		mk("soon", "2024-05-12"),
		mk("later", "2024-06-30"),
		mk("past", "2024-05-01"),
		mk("garbage", "next tuesday"),
		mk("none", ""),
	}))

	notices := &recordingNotices{}
	checker := NewExpiryChecker(s, notices, s.KV(), 3, logger)
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	got, err := checker.Check(ctx, now)
	require.NoError(t, err)

	byID := map[string]Expiring{}
	for _, e := range got {
		byID[e.PrescriptionID] = e
	}
	require.Len(t, byID, 2)
	assert.Equal(t, 2, byID["soon"].DaysLeft)
	assert.Equal(t, -9, byID["past"].DaysLeft)
	require.Len(t, notices.notices, 2)

	// a second run does not repeat the notices
	_, err = checker.Check(ctx, now)
	require.NoError(t, err)
	assert.Len(t, notices.notices, 2)
}

func TestExpiryMessage(t *testing.T) {
	assert.Equal(t, "Your prescription from Dr. Rao expires today", expiryMessage(Expiring{Doctor: "Dr. Rao"}))
	assert.Equal(t, "Your prescription expires tomorrow", expiryMessage(Expiring{DaysLeft: 1}))
	assert.Equal(t, "Your prescription expires in 3 days", expiryMessage(Expiring{DaysLeft: 3}))
	assert.Equal(t, "Your prescription has expired", expiryMessage(Expiring{DaysLeft: -1}))
}

func TestParseExpiry(t *testing.T) {
	_, ok := ParseExpiry("2024-05-12")
	assert.True(t, ok)
	_, ok = ParseExpiry("12/05/2024")
	assert.True(t, ok)
	_, ok = ParseExpiry("2024-05-12T10:00:00Z")
	assert.True(t, ok)
	_, ok = ParseExpiry("soon")
	assert.False(t, ok)
}
