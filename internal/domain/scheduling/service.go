package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/identity"
	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/events"
)

// CreateRequest is the body of appointment creation.
type CreateRequest struct {
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
	DoctorID    uuid.UUID `json:"doctor_id" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Reason      *string   `json:"reason" validate:"omitempty,max=500"`
}

type Service struct {
	repo     AppointmentRepository
	patients identity.PatientRepository
	doctors  identity.DoctorRepository
	guard    *auth.Guard
	events   events.Publisher
	clock    auth.Clock
	logger   zerolog.Logger
}

func NewService(repo AppointmentRepository, patients identity.PatientRepository, doctors identity.DoctorRepository,
	guard *auth.Guard, pub events.Publisher, clock auth.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:     repo,
		patients: patients,
		doctors:  doctors,
		guard:    guard,
		events:   pub,
		clock:    clock,
		logger:   logger,
	}
}

type appointmentEvent struct {
	AppointmentID  uuid.UUID `json:"appointment_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Status         Status    `json:"status"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
	Version        int       `json:"version"`
}

// Create books a Scheduled appointment. A Patient caller may only book for
// a patient record it owns.
func (s *Service) Create(ctx context.Context, p auth.Principal, req CreateRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil || req.ScheduledAt.IsZero() {
		return nil, apperr.Validation("patient_id, doctor_id and scheduled_at are required")
	}
	if err := s.guard.Check(ctx, p, auth.OpAppointmentCreate, auth.PatientScope(req.PatientID)); err != nil {
		return nil, err
	}

	patient, err := s.patients.GetByID(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if !patient.Active {
		return nil, identity.ErrPatientNotFound
	}
	doctor, err := s.doctors.GetByID(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}

	a := NewAppointment(req.PatientID, req.DoctorID, req.ScheduledAt, req.Reason, s.clock().UTC())
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	a.PatientName = patient.FullName()
	a.DoctorName = doctor.FullName()
	a.DoctorSpecialty = doctor.Specialty

	s.logger.Info().Str("appointment_id", a.ID.String()).Str("created_by", p.SubjectID.String()).Msg("appointment created")
	s.emit(ctx, events.AppointmentCreated, p, a, "")
	return a, nil
}

// Get returns an appointment. Patients see only their own and get
// ErrAppointmentNotFound for anyone else's.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckRead(ctx, p, auth.OpAppointmentRead, auth.PatientScope(a.PatientID), ErrAppointmentNotFound); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns every appointment that is not cancelled.
func (s *Service) List(ctx context.Context, p auth.Principal, limit, offset int) ([]*Appointment, int, error) {
	if err := s.guard.Check(ctx, p, auth.OpAppointmentList, auth.NoScope); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, ListFilter{ExcludeCancelled: true}, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, p auth.Principal, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	if err := s.guard.Check(ctx, p, auth.OpAppointmentByPatient, auth.PatientScope(patientID)); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, ListFilter{PatientID: patientID}, limit, offset)
}

// ListByDoctor is open to office staff and to the doctor who owns doctorID.
func (s *Service) ListByDoctor(ctx context.Context, p auth.Principal, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	if err := s.guard.Check(ctx, p, auth.OpAppointmentByDoctor, auth.DoctorScope(doctorID)); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, ListFilter{DoctorID: doctorID}, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, p auth.Principal, status string, limit, offset int) ([]*Appointment, int, error) {
	if err := s.guard.Check(ctx, p, auth.OpAppointmentByStatus, auth.NoScope); err != nil {
		return nil, 0, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, ListFilter{Status: st}, limit, offset)
}

// UpdateStatus moves an appointment along the lifecycle. expectedVersion
// must match the stored version or ErrVersionConflict is returned.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id uuid.UUID, status string, expectedVersion int) (*Appointment, error) {
	if err := s.guard.Check(ctx, p, auth.OpAppointmentUpdateStatus, auth.NoScope); err != nil {
		return nil, err
	}
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, p, id, to, expectedVersion)
}

// Cancel is UpdateStatus to Cancelled.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id uuid.UUID, expectedVersion int) (*Appointment, error) {
	if err := s.guard.Check(ctx, p, auth.OpAppointmentCancel, auth.NoScope); err != nil {
		return nil, err
	}
	return s.transition(ctx, p, id, StatusCancelled, expectedVersion)
}

func (s *Service) transition(ctx context.Context, p auth.Principal, id uuid.UUID, to Status, expectedVersion int) (*Appointment, error) {
	if expectedVersion <= 0 {
		return nil, ErrVersionRequired
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.VersionID != expectedVersion {
		return nil, ErrVersionConflict
	}
	from := a.Status
	if err := a.TransitionTo(to, s.clock().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, a, expectedVersion); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Int("version", a.VersionID).
		Str("changed_by", p.SubjectID.String()).
		Msg("appointment status changed")
	s.emit(ctx, events.AppointmentStatusChanged, p, a, from)
	return a, nil
}

func (s *Service) emit(ctx context.Context, eventType string, p auth.Principal, a *Appointment, previous Status) {
	events.Emit(ctx, s.events, s.logger, eventType, a.ID.String(), a.UpdatedAt, p.SubjectID, appointmentEvent{
		AppointmentID:  a.ID,
		PatientID:      a.PatientID,
		DoctorID:       a.DoctorID,
		ScheduledAt:    a.ScheduledAt,
		Status:         a.Status,
		PreviousStatus: previous,
		Version:        a.VersionID,
	})
}
