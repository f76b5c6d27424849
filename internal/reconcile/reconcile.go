// Package reconcile applies "mark as taken" actions to the cached
// prescriptions.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/metrics"
	"github.com/Medi-Pal/medipal/internal/store"
	"go.uber.org/zap"
)

// MissingParameters is the one error shown to the user
const MissingParameters = "Missing required parameters"

// Outcome tags how a reconciliation ended
type Outcome string

const (
	Taken         Outcome = "taken"
	Skipped       Outcome = "skipped"
	Invalid       Outcome = "invalid"
	NotFound      Outcome = "not_found"
	AlreadyZero   Outcome = "already_zero"
	PersistFailed Outcome = "persist_failed"
)

// Request is a mark-as-taken action. PrescriptionID may be blank.
type Request struct {
	PrescriptionID string `json:"prescription_id"`
	MedicineName   string `json:"medicine_name"`
	TimeOfDay      string `json:"time_of_day"`
}

// Result reports the outcome and what was touched
type Result struct {
	Outcome        Outcome `json:"outcome"`
	PrescriptionID string  `json:"prescription_id,omitempty"`
	MatchedBy      string  `json:"matched_by,omitempty"`
	Remaining      int     `json:"remaining"`
	Detail         string  `json:"detail,omitempty"`
	Err            error   `json:"-"`
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

// Remote is the backend used for the best-effort refresh
type Remote interface {
	FetchPrescriptionByID(ctx context.Context, id string) (*store.Prescription, error)
	FetchPrescriptionsForPhone(ctx context.Context, phone string) ([]store.Prescription, error)
}

// Toaster shows short messages on the interaction dispatcher
type Toaster interface {
	ShowConfirmation(ctx context.Context, text string) error
	ShowError(ctx context.Context, text string) error
}

// Signal announces cache changes
type Signal interface {
	PrescriptionsChanged(prescriptionID string)
}

// Config wires a Reconciler
type Config struct {
	Cache          Cache
	Remote         Remote
	Toaster        Toaster
	Signal         Signal
	Logger         *zap.Logger
	Metrics        *metrics.Collector
	Matchers       []Matcher
	RefreshTimeout time.Duration
}

// Reconciler decrements the remaining dose for a mark-taken action. Every
// soft failure is reported as an Outcome rather than an error.
type Reconciler struct {
	cache          Cache
	remote         Remote
	toaster        Toaster
	signal         Signal
	logger         *zap.Logger
	metrics        *metrics.Collector
	matchers       []Matcher
	refreshTimeout time.Duration

	refreshes sync.WaitGroup
}

func New(cfg Config) *Reconciler {
	matchers := cfg.Matchers
	if len(matchers) == 0 {
		matchers = DefaultMatchers
	}
	timeout := cfg.RefreshTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Reconciler{
		cache:          cfg.Cache,
		remote:         cfg.Remote,
		toaster:        cfg.Toaster,
		signal:         cfg.Signal,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		matchers:       matchers,
		refreshTimeout: timeout,
	}
}

// MarkTaken confirms to the user first and then reconciles the cache
func (r *Reconciler) MarkTaken(ctx context.Context, req Request) Result {
	res := r.markTaken(ctx, req)
	r.metrics.DoseOutcome(string(res.Outcome))
	return res
}

func (r *Reconciler) markTaken(ctx context.Context, req Request) Result {
	if strings.TrimSpace(req.MedicineName) == "" || strings.TrimSpace(req.TimeOfDay) == "" {
		r.toast(ctx, true, MissingParameters)
		return Result{Outcome: Invalid, Detail: MissingParameters}
	}

	r.toast(ctx, false, fmt.Sprintf("%s marked as taken", req.MedicineName))

	if strings.TrimSpace(req.PrescriptionID) == "" {
		r.logger.Info("Dose taken without prescription id, nothing to reconcile",
			zap.String("medicine", req.MedicineName),
		)
		return Result{Outcome: Skipped}
	}

	list, err := r.cache.ListPrescriptions(ctx)
	if err != nil {
		return r.persistFailed(req, "load cache", err)
	}

	candidate, matchedBy := match(r.matchers, list, req)
	if candidate == nil {
		r.logger.Info("No cached prescription matches dose",
			zap.String("prescription_id", req.PrescriptionID),
			zap.String("medicine", req.MedicineName),
		)
		return Result{Outcome: NotFound, Detail: "prescription"}
	}

	id := candidate.ID
	unlock := r.cache.LockPrescription(id)
	res, committed := r.decrement(ctx, id, req)
	unlock()
	res.MatchedBy = matchedBy

	if committed == nil {
		return res
	}

	r.signal.PrescriptionsChanged(id)

	r.refreshes.Add(1)
	go func() {
		defer r.refreshes.Done()
		r.refresh(context.WithoutCancel(ctx), *committed)
	}()

	return res
}

// decrement runs inside the prescription's critical section
func (r *Reconciler) decrement(ctx context.Context, id string, req Request) (Result, *store.Prescription) {
	current, err := r.cache.GetPrescription(ctx, id)
	if err != nil {
		return r.persistFailed(req, "reload prescription", err), nil
	}
	if current == nil {
		return Result{Outcome: NotFound, PrescriptionID: id, Detail: "prescription"}, nil
	}

	updated := current.Clone()
	med := updated.Medicine(req.MedicineName)
	if med == nil {
		r.logger.Info("Medicine not found in prescription",
			zap.String("prescription_id", id),
			zap.String("medicine", req.MedicineName),
		)
		return Result{Outcome: NotFound, PrescriptionID: id, Detail: "medicine"}, nil
	}

	timing := med.Timing(req.TimeOfDay)
	if timing == nil {
		r.logger.Info("Time of day not found for medicine",
			zap.String("prescription_id", id),
			zap.String("medicine", req.MedicineName),
			zap.String("time_of_day", req.TimeOfDay),
		)
		return Result{Outcome: NotFound, PrescriptionID: id, Detail: "timing"}, nil
	}

	if timing.Dosage <= 0 {
		r.logger.Info("Dose already at zero",
			zap.String("prescription_id", id),
			zap.String("medicine", req.MedicineName),
			zap.String("time_of_day", req.TimeOfDay),
		)
		return Result{Outcome: AlreadyZero, PrescriptionID: id}, nil
	}

	timing.Dosage--
	remaining := timing.Dosage
	if med.Duration != nil {
		total := med.TotalDosage()
		med.Duration = &total
	}

	// the cache is cleared and only the updated prescription written back;
	// the refresh restores the others from the backend
	if err := r.cache.ReplacePrescriptions(ctx, updated); err != nil {
		return r.persistFailed(req, "write prescription", err), nil
	}

	r.logger.Info("Dose marked as taken",
		zap.String("prescription_id", id),
		zap.String("medicine", req.MedicineName),
		zap.String("time_of_day", req.TimeOfDay),
		zap.Int("remaining", remaining),
	)
	return Result{Outcome: Taken, PrescriptionID: id, Remaining: remaining}, &updated
}

func (r *Reconciler) persistFailed(req Request, step string, err error) Result {
	wrapped := apperrors.ErrPersistFailed.WithCause(fmt.Errorf("%s: %w", step, err))
	r.logger.Warn("Failed to reconcile dose",
		zap.String("step", step),
		zap.String("prescription_id", req.PrescriptionID),
		zap.String("medicine", req.MedicineName),
		zap.Error(err),
	)
	return Result{Outcome: PersistFailed, PrescriptionID: req.PrescriptionID, Detail: step, Err: wrapped}
}

func (r *Reconciler) toast(ctx context.Context, isError bool, text string) {
	var err error
	if isError {
		err = r.toaster.ShowError(ctx, text)
	} else {
		err = r.toaster.ShowConfirmation(ctx, text)
	}
	if err != nil {
		r.logger.Warn("Failed to show toast", zap.String("text", text), zap.Error(err))
	}
}

// Wait blocks until background refreshes have finished
func (r *Reconciler) Wait() {
	r.refreshes.Wait()
}

// refresh pulls the backend copy of the reconciled prescription and restores
// the other prescriptions the clear removed. Failures are logged only.
func (r *Reconciler) refresh(ctx context.Context, committed store.Prescription) {
	if r.remote == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.refreshTimeout)
	defer cancel()

	phone := committed.PhoneNumber
	if u, err := r.cache.CurrentUser(ctx); err == nil && u != nil && u.PhoneNumber != "" {
		phone = u.PhoneNumber
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.refreshOne(ctx, committed)
	}()
	go func() {
		defer wg.Done()
		r.refreshOthers(ctx, committed.ID, phone)
	}()
	wg.Wait()
}

func (r *Reconciler) refreshOne(ctx context.Context, committed store.Prescription) {
	remote, err := r.remote.FetchPrescriptionByID(ctx, committed.ID)
	if err != nil {
		r.logger.Warn("Failed to refresh prescription",
			zap.String("prescription_id", committed.ID),
			zap.Error(err),
		)
		return
	}
	if remote == nil {
		return
	}

	if drift := diffDosages(committed, *remote); len(drift) > 0 {
		r.logger.Info("Backend dosage differs from local cache",
			zap.String("prescription_id", committed.ID),
			zap.Strings("drift", drift),
		)
	}
}

func (r *Reconciler) refreshOthers(ctx context.Context, reconciledID, phone string) {
	if phone == "" {
		r.logger.Warn("No phone number for refresh", zap.String("prescription_id", reconciledID))
		return
	}

	list, err := r.remote.FetchPrescriptionsForPhone(ctx, phone)
	if err != nil {
		r.logger.Warn("Failed to refresh prescriptions", zap.Error(err))
		return
	}

	restored := 0
	for i := range list {
		p := list[i]
		if p.ID == reconciledID {
			continue
		}
		if r.restoreIfMissing(ctx, &p) {
			restored++
		}
	}

	if restored > 0 {
		r.signal.PrescriptionsChanged("")
	}
	r.logger.Debug("Prescriptions refreshed",
		zap.Int("fetched", len(list)),
		zap.Int("restored", restored),
	)
}

// restoreIfMissing writes p unless a cached copy already exists
func (r *Reconciler) restoreIfMissing(ctx context.Context, p *store.Prescription) bool {
	unlock := r.cache.LockPrescription(p.ID)
	defer unlock()

	existing, err := r.cache.GetPrescription(ctx, p.ID)
	if err != nil || existing != nil {
		return false
	}
	if err := r.cache.UpsertPrescription(ctx, p); err != nil {
		r.logger.Warn("Failed to restore prescription",
			zap.String("prescription_id", p.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func diffDosages(local, remote store.Prescription) []string {
	var drift []string
	for _, lm := range local.Medicines {
		rm := remote.Medicine(lm.DrugName)
		if rm == nil {
			drift = append(drift, lm.DrugName+": missing")
			continue
		}
		for _, lt := range lm.Timings {
			rt := rm.Timing(lt.TimeOfDay)
			if rt == nil || rt.Dosage != lt.Dosage {
				remoteDose := -1
				if rt != nil {
					remoteDose = rt.Dosage
				}
				drift = append(drift, fmt.Sprintf("%s/%s: local=%d remote=%d", lm.DrugName, lt.TimeOfDay, lt.Dosage, remoteDose))
			}
		}
	}
	return drift
}
