// Package notify surfaces reminder notices, confirmations and errors to the
// user-facing sinks, and carries the prescriptions-changed signal.
package notify

import (
	"context"
	"time"
)

// Kind classifies a notice
type Kind string

const (
	KindReminder     Kind = "reminder"
	KindConfirmation Kind = "confirmation"
	KindError        Kind = "error"
	KindExpiry       Kind = "expiry"
)

// ActionKind names a user action attached to a notice
type ActionKind string

const (
	ActionMarkTaken ActionKind = "mark_taken"
	ActionNeedHelp  ActionKind = "need_help"
)

// Action is a button on a reminder notice. Mark-taken actions carry the
// full triple, need-help actions only the medicine name.
type Action struct {
	Kind           ActionKind `json:"kind"`
	Label          string     `json:"label"`
	PrescriptionID string     `json:"prescription_id,omitempty"`
	MedicineName   string     `json:"medicine_name"`
	TimeOfDay      string     `json:"time_of_day,omitempty"`
}

// Notice is a single user-visible message
type Notice struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Title     string            `json:"title,omitempty"`
	Message   string            `json:"message"`
	Actions   []Action          `json:"actions,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Sink presents notices on one surface
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notice) error
}
