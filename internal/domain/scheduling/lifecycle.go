package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/apperr"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

var (
	ErrInvalidStatus     = apperr.New(apperr.KindValidation, "invalid_status", "status must be one of: Scheduled, Completed, Cancelled")
	ErrInvalidTransition = apperr.New(apperr.KindState, "invalid_transition", "invalid status transition")
)

// ParseStatus accepts exactly the three lifecycle values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether from -> to is legal. Only Scheduled moves,
// and only to a terminal state.
func CanTransition(from, to Status) bool {
	return from == StatusScheduled && to.IsTerminal()
}

// NewAppointment returns a Scheduled appointment at version 1.
func NewAppointment(patientID, doctorID uuid.UUID, scheduledAt time.Time, reason *string, now time.Time) *Appointment {
	return &Appointment{
		ID:          uuid.New(),
		PatientID:   patientID,
		DoctorID:    doctorID,
		ScheduledAt: scheduledAt.UTC(),
		Status:      StatusScheduled,
		Reason:      reason,
		VersionID:   1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TransitionTo moves a to the requested status or fails with
// ErrInvalidTransition, leaving a unchanged.
func (a *Appointment) TransitionTo(to Status, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return ErrInvalidTransition.Wrap(fmt.Errorf("%s -> %s", a.Status, to))
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}
