package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the appointment until the ambient transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateStatus writes a.Status only if the stored version still equals
	// expectedVersion, and advances a.VersionID on success.
	UpdateStatus(ctx context.Context, a *Appointment, expectedVersion int) error
	// List orders by scheduled time, latest first.
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error)
}
