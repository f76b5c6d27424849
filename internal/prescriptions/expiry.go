package prescriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Medi-Pal/medipal/internal/notify"
	"github.com/Medi-Pal/medipal/internal/store"
	"go.uber.org/zap"
)

const expiryNamespace = "expiry_notices"

var expiryLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02-01-2006",
}

// NoticeShower surfaces expiry notices
type NoticeShower interface {
	Show(ctx context.Context, n notify.Notice) error
}

// Marks remembers which notices were already shown
type Marks interface {
	GetBool(namespace, key string, def bool) (bool, error)
	SetBool(namespace, key string, value bool) error
}

// ExpiryChecker warns about prescriptions expiring within WarnDays
type ExpiryChecker struct {
	cache    Cache
	notices  NoticeShower
	marks    Marks
	warnDays int
	logger   *zap.Logger
}

func NewExpiryChecker(cache Cache, notices NoticeShower, marks Marks, warnDays int, logger *zap.Logger) *ExpiryChecker {
	if warnDays < 0 {
		warnDays = 0
	}
	return &ExpiryChecker{
		cache:    cache,
		notices:  notices,
		marks:    marks,
		warnDays: warnDays,
		logger:   logger,
	}
}

// Expiring is a prescription close to or past its expiry date
type Expiring struct {
	PrescriptionID string    `json:"prescription_id"`
	Doctor         string    `json:"doctor"`
	ExpiresAt      time.Time `json:"expires_at"`
	DaysLeft       int       `json:"days_left"`
}

// ParseExpiry accepts the date formats the backend has been seen to send
func ParseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Check returns every prescription expiring within the warning window and
// shows one notice per prescription and expiry date. Malformed dates are
// skipped.
func (c *ExpiryChecker) Check(ctx context.Context, now time.Time) ([]Expiring, error) {
	list, err := c.cache.ListPrescriptions(ctx)
	if err != nil {
		return nil, err
	}

	var out []Expiring
	for _, p := range list {
		if p.ExpiryDate == "" {
			continue
		}
		t, ok := ParseExpiry(p.ExpiryDate)
		if !ok {
			c.logger.Debug("Skipping malformed expiry date",
				zap.String("prescription_id", p.ID),
				zap.String("expiry_date", p.ExpiryDate),
			)
			continue
		}

		days := daysUntil(now, t)
		if days > c.warnDays {
			continue
		}

		e := Expiring{
			PrescriptionID: p.ID,
			Doctor:         p.Doctor.Name,
			ExpiresAt:      t,
			DaysLeft:       days,
		}
		out = append(out, e)
		c.notify(ctx, p, e)
	}
	return out, nil
}

func (c *ExpiryChecker) notify(ctx context.Context, p store.Prescription, e Expiring) {
	if c.notices == nil {
		return
	}

	// expired prescriptions get their own notice after the warning
	state := "warn"
	if e.DaysLeft < 0 {
		state = "expired"
	}
	key := p.ID + ":" + p.ExpiryDate + ":" + state

	if c.marks != nil {
		shown, err := c.marks.GetBool(expiryNamespace, key, false)
		if err != nil {
			c.logger.Warn("Failed to read expiry notice mark", zap.String("prescription_id", p.ID), zap.Error(err))
		}
		if shown {
			return
		}
	}

	n := notify.Notice{
		Kind:    notify.KindExpiry,
		Title:   "Prescription expiring",
		Message: expiryMessage(e),
		Data: map[string]string{
			"prescription_id": p.ID,
			"expiry_date":     p.ExpiryDate,
		},
	}
	if err := c.notices.Show(ctx, n); err != nil {
		c.logger.Warn("Failed to show expiry notice", zap.String("prescription_id", p.ID), zap.Error(err))
		return
	}

	if c.marks != nil {
		if err := c.marks.SetBool(expiryNamespace, key, true); err != nil {
			c.logger.Warn("Failed to store expiry notice mark", zap.String("prescription_id", p.ID), zap.Error(err))
		}
	}
}

func expiryMessage(e Expiring) string {
	from := "Your prescription"
	if e.Doctor != "" {
		from = fmt.Sprintf("Your prescription from %s", e.Doctor)
	}
	switch {
	case e.DaysLeft < 0:
		return from + " has expired"
	case e.DaysLeft == 0:
		return from + " expires today"
	case e.DaysLeft == 1:
		return from + " expires tomorrow"
	}
	return fmt.Sprintf("%s expires in %d days", from, e.DaysLeft)
}
