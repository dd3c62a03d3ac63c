package clinical

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/identity"
	"github.com/ehr/records/internal/domain/scheduling"
	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/document"
	"github.com/ehr/records/internal/platform/events"
)

// CreateRequest is the body of medical record creation. Patient and doctor
// are taken from the appointment, never from the caller.
type CreateRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" validate:"required"`
	Diagnosis     string    `json:"diagnosis" validate:"required,max=2000"`
	Treatment     *string   `json:"treatment" validate:"omitempty,max=2000"`
	Prescription  *string   `json:"prescription" validate:"omitempty,max=2000"`
	Notes         *string   `json:"notes" validate:"omitempty,max=4000"`
}

// Document is a rendered patient history.
type Document struct {
	FileName    string
	ContentType string
	Data        []byte
}

type Service struct {
	tx           identity.TxRunner
	records      RecordRepository
	appointments scheduling.AppointmentRepository
	patients     identity.PatientRepository
	guard        *auth.Guard
	renderer     document.Renderer
	events       events.Publisher
	clock        auth.Clock
	logger       zerolog.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Tx           identity.TxRunner
	Records      RecordRepository
	Appointments scheduling.AppointmentRepository
	Patients     identity.PatientRepository
	Guard        *auth.Guard
	Renderer     document.Renderer
	Events       events.Publisher
	Clock        auth.Clock
	Logger       zerolog.Logger
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Renderer == nil {
		d.Renderer = document.NewPDFRenderer()
	}
	return &Service{
		tx:           d.Tx,
		records:      d.Records,
		appointments: d.Appointments,
		patients:     d.Patients,
		guard:        d.Guard,
		renderer:     d.Renderer,
		events:       d.Events,
		clock:        d.Clock,
		logger:       d.Logger,
	}
}

type recordEvent struct {
	RecordID      uuid.UUID `json:"record_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	RecordDate    time.Time `json:"record_date"`
}

// Create writes the medical record for a Scheduled appointment. The
// appointment row stays locked from the status check until the insert.
func (s *Service) Create(ctx context.Context, p auth.Principal, req CreateRequest) (*MedicalRecord, error) {
	if err := s.guard.Check(ctx, p, auth.OpRecordCreate, auth.NoScope); err != nil {
		return nil, err
	}
	diagnosis := strings.TrimSpace(req.Diagnosis)
	if diagnosis == "" {
		return nil, ErrDiagnosisRequired
	}

	var rec *MedicalRecord
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if a.Status != scheduling.StatusScheduled {
			return ErrInvalidState
		}
		if _, err := s.records.GetByAppointmentID(ctx, a.ID); err == nil {
			return ErrRecordExists
		} else if !apperr.Is(err, apperr.KindNotFound) {
			return err
		}

		now := s.clock().UTC()
		rec = &MedicalRecord{
			ID:              uuid.New(),
			AppointmentID:   a.ID,
			PatientID:       a.PatientID,
			DoctorID:        a.DoctorID,
			Diagnosis:       diagnosis,
			Treatment:       trimmed(req.Treatment),
			Prescription:    trimmed(req.Prescription),
			Notes:           trimmed(req.Notes),
			RecordDate:      now,
			CreatedAt:       now,
			AppointmentDate: a.ScheduledAt,
			PatientName:     a.PatientName,
			DoctorName:      a.DoctorName,
			DoctorSpecialty: a.DoctorSpecialty,
		}
		return s.records.Create(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("record_id", rec.ID.String()).
		Str("appointment_id", rec.AppointmentID.String()).
		Str("created_by", p.SubjectID.String()).
		Msg("medical record created")
	events.Emit(ctx, s.events, s.logger, events.MedicalRecordCreated, rec.AppointmentID.String(), rec.CreatedAt, p.SubjectID, recordEvent{
		RecordID:      rec.ID,
		AppointmentID: rec.AppointmentID,
		PatientID:     rec.PatientID,
		DoctorID:      rec.DoctorID,
		RecordDate:    rec.RecordDate,
	})
	return rec, nil
}

// Get returns a record. Patients get ErrRecordNotFound for records that
// are not theirs.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*MedicalRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckRead(ctx, p, auth.OpRecordRead, auth.PatientScope(rec.PatientID), ErrRecordNotFound); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context, p auth.Principal, limit, offset int) ([]*MedicalRecord, int, error) {
	if err := s.guard.Check(ctx, p, auth.OpRecordList, auth.NoScope); err != nil {
		return nil, 0, err
	}
	return s.records.List(ctx, limit, offset)
}

// activePatient treats a soft-deleted patient as missing.
func (s *Service) activePatient(ctx context.Context, id uuid.UUID) (*identity.PatientRecord, error) {
	patient, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !patient.Active {
		return nil, identity.ErrPatientNotFound
	}
	return patient, nil
}

// History returns a patient's records inside r, newest first.
func (s *Service) History(ctx context.Context, p auth.Principal, patientID uuid.UUID, r DateRange) ([]*MedicalRecord, error) {
	if err := s.guard.Check(ctx, p, auth.OpRecordHistory, auth.PatientScope(patientID)); err != nil {
		return nil, err
	}
	if _, err := s.activePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.history(ctx, patientID, r)
}

// HistoryDocument renders the patient's history inside r.
func (s *Service) HistoryDocument(ctx context.Context, p auth.Principal, patientID uuid.UUID, r DateRange) (*Document, error) {
	if err := s.guard.Check(ctx, p, auth.OpRecordDocument, auth.PatientScope(patientID)); err != nil {
		return nil, err
	}
	patient, err := s.activePatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	recs, err := s.history(ctx, patientID, r)
	if err != nil {
		return nil, err
	}

	summary := document.PatientSummary{
		FirstName:      patient.FirstName,
		LastName:       patient.LastName,
		DocumentNumber: patient.DocumentNumber,
		BirthDate:      patient.BirthDate,
		Gender:         patient.Gender,
		Email:          patient.Email,
		PhoneNumber:    patient.PhoneNumber,
	}
	entries := make([]document.HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, document.HistoryEntry{
			RecordDate:      rec.RecordDate,
			DoctorName:      rec.DoctorName,
			DoctorSpecialty: rec.DoctorSpecialty,
			Diagnosis:       rec.Diagnosis,
			Treatment:       rec.Treatment,
			Prescription:    rec.Prescription,
			Notes:           rec.Notes,
		})
	}

	now := s.clock()
	data, err := s.renderer.Render(summary, entries, now)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "render_failed", "could not render medical history").Wrap(err)
	}
	s.logger.Info().
		Str("patient_id", patientID.String()).
		Int("records", len(entries)).
		Str("requested_by", p.SubjectID.String()).
		Msg("medical history rendered")
	return &Document{FileName: document.FileName(summary, now), ContentType: document.ContentType, Data: data}, nil
}

func (s *Service) history(ctx context.Context, patientID uuid.UUID, r DateRange) ([]*MedicalRecord, error) {
	if !r.valid() {
		return nil, ErrInvalidDateRange
	}
	return s.records.ListByPatient(ctx, patientID, r)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
