// Package sos sends emergency text messages to the patient's contacts.
package sos

import (
	"context"
	"fmt"
	"strings"
	"sync"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/metrics"
	"github.com/Medi-Pal/medipal/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SMSSender delivers one text message
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Contacts lists emergency contacts and the signed-in patient
type Contacts interface {
	ListContacts(ctx context.Context) ([]store.EmergencyContact, error)
	CurrentUser(ctx context.Context) (*store.User, error)
}

// Report summarises one SOS fan-out
type Report struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

const defaultMaxParallel = 8

// Alerter fans an SOS out to every emergency contact
type Alerter struct {
	contacts Contacts
	sender   SMSSender
	logger   *zap.Logger
	metrics  *metrics.Collector

	maxParallel int
}

func NewAlerter(contacts Contacts, sender SMSSender, logger *zap.Logger, m *metrics.Collector) *Alerter {
	return &Alerter{
		contacts: contacts,
		sender:   sender,
		logger:   logger,
		metrics:  m,

		maxParallel: defaultMaxParallel,
	}
}

// SendSOS texts every contact concurrently. medicineName may be empty.
// A failed contact does not stop the others.
func (a *Alerter) SendSOS(ctx context.Context, medicineName string) (Report, error) {
	contacts, err := a.contacts.ListContacts(ctx)
	if err != nil {
		return Report{}, err
	}
	if len(contacts) == 0 {
		return Report{}, apperrors.ErrNoContacts
	}

	patient := "Your contact"
	if u, err := a.contacts.CurrentUser(ctx); err == nil && u != nil && u.Name != "" {
		patient = u.Name
	}
	body := Message(patient, medicineName)

	// Workers never return an error so one failed contact cannot stop the rest.
	var (
		g      errgroup.Group
		mu     sync.Mutex
		report Report
	)
	if a.maxParallel > 0 {
		g.SetLimit(a.maxParallel)
	}
	for _, c := range contacts {
		c := c // per-iteration copy (go.mod targets go 1.21 loop semantics)
		g.Go(func() error {
			err := a.sender.SendSMS(ctx, c.PhoneNumber, body)
			a.metrics.SOSMessage(err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", c.Name, err))
				a.logger.Warn("Failed to send SOS message",
					zap.String("contact_id", c.ID),
					zap.Error(err),
				)
				return nil
			}
			report.Sent++
			return nil
		})
	}
	_ = g.Wait()

	a.logger.Info("SOS sent",
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// Message is the SOS text sent to contacts
func Message(patient, medicineName string) string {
	var b strings.Builder
	b.WriteString("SOS from MediPal: ")
	b.WriteString(patient)
	b.WriteString(" needs help")
	if medicineName != "" {
		b.WriteString(" with their medicine ")
		b.WriteString(medicineName)
	}
	b.WriteString(". Please check on them.")
	return b.String()
}
