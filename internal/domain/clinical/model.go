package clinical

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/apperr"
)

// MedicalRecord maps to the medical_records table. PatientID and DoctorID
// are always copied from the appointment. The read fields are filled in by
// queries that join the appointment and its participants.
type MedicalRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Diagnosis     string    `db:"diagnosis" json:"diagnosis"`
	Treatment     *string   `db:"treatment" json:"treatment,omitempty"`
	Prescription  *string   `db:"prescription" json:"prescription,omitempty"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	RecordDate    time.Time `db:"record_date" json:"record_date"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`

	AppointmentDate time.Time `db:"-" json:"appointment_date"`
	PatientName     string    `db:"-" json:"patient_name,omitempty"`
	DoctorName      string    `db:"-" json:"doctor_name,omitempty"`
	DoctorSpecialty string    `db:"-" json:"doctor_specialty,omitempty"`
}

// DateRange bounds a history query. Nil ends are open and both ends are
// inclusive.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside r.
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

func (r DateRange) valid() bool {
	return r.From == nil || r.To == nil || !r.To.Before(*r.From)
}

var (
	ErrRecordNotFound    = apperr.New(apperr.KindNotFound, "record_not_found", "medical record not found")
	ErrRecordExists      = apperr.New(apperr.KindConflict, "record_exists", "a medical record already exists for this appointment")
	ErrDiagnosisRequired = apperr.New(apperr.KindValidation, "diagnosis_required", "diagnosis is required")
	ErrInvalidState      = apperr.New(apperr.KindState, "invalid_state", "medical records can only be created for scheduled appointments")
	ErrInvalidDateRange  = apperr.New(apperr.KindValidation, "invalid_date_range", "start date must not be after end date")
)
