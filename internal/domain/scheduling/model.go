package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/apperr"
)

// Appointment maps to the appointments table. The name fields are read-only
// and filled in by list and get queries.
type Appointment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Status      Status    `db:"status" json:"status"`
	Reason      *string   `db:"reason" json:"reason,omitempty"`
	VersionID   int       `db:"version_id" json:"version"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	PatientName     string `db:"-" json:"patient_name,omitempty"`
	DoctorName      string `db:"-" json:"doctor_name,omitempty"`
	DoctorSpecialty string `db:"-" json:"doctor_specialty,omitempty"`
}

// ListFilter narrows appointment listings. Zero values match everything.
type ListFilter struct {
	PatientID        uuid.UUID
	DoctorID         uuid.UUID
	Status           Status
	ExcludeCancelled bool
}

// Matches reports whether a passes the filter.
func (f ListFilter) Matches(a *Appointment) bool {
	switch {
	case f.PatientID != uuid.Nil && a.PatientID != f.PatientID:
		return false
	case f.DoctorID != uuid.Nil && a.DoctorID != f.DoctorID:
		return false
	case f.Status != "" && a.Status != f.Status:
		return false
	case f.ExcludeCancelled && a.Status == StatusCancelled:
		return false
	}
	return true
}

var (
	ErrAppointmentNotFound = apperr.New(apperr.KindNotFound, "appointment_not_found", "appointment not found")
	ErrVersionConflict     = apperr.New(apperr.KindConflict, "version_conflict", "appointment was modified by another request")
	ErrVersionRequired     = apperr.New(apperr.KindValidation, "version_required", "version is required")
)
