package clinical

import (
	"context"

	"github.com/google/uuid"
)

type RecordRepository interface {
	// Create fails with ErrRecordExists when the appointment already has a record.
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*MedicalRecord, error)
	// ListByPatient orders by record date, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, r DateRange) ([]*MedicalRecord, error)
	List(ctx context.Context, limit, offset int) ([]*MedicalRecord, int, error)
}
