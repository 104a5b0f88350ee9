package model

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// ActiveStatuses are the statuses that hold a reservation on the calendar.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed}

// IsActive reports whether an appointment in status s blocks its time range.
func (s Status) IsActive() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanTransitionTo encodes the appointment lifecycle:
//
//	scheduled -> confirmed | cancelled | completed | no_show
//	confirmed -> cancelled | completed | no_show
//
// completed, cancelled and no_show are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusScheduled:
		return next == StatusConfirmed || next == StatusCancelled || next == StatusCompleted || next == StatusNoShow
	case StatusConfirmed:
		return next == StatusCancelled || next == StatusCompleted || next == StatusNoShow
	}
	return false
}

type Appointment struct {
	ID                 string
	BusinessID         string
	ServiceID          string
	CustomerID         string
	StaffID            string
	ResourceKey        string
	StartTime          time.Time
	EndTime            time.Time
	Status             Status
	Timezone           string
	Notes              string
	IdempotencyKey     string
	ConfirmationSentAt *time.Time
	ReminderSentAt     *time.Time
	CancelledAt        *time.Time
	CancelledBy        string
	CancelReason       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
