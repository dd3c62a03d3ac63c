package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/auth"
)

type ownerResolver struct {
	patients PatientRepository
	doctors  DoctorRepository
}

// NewOwnerResolver resolves record owners from the patient and doctor stores.
func NewOwnerResolver(patients PatientRepository, doctors DoctorRepository) auth.OwnerResolver {
	return &ownerResolver{patients: patients, doctors: doctors}
}

func (r *ownerResolver) PatientOwner(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error) {
	p, err := r.patients.GetByID(ctx, patientID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.UserID, nil
}

func (r *ownerResolver) DoctorOwner(ctx context.Context, doctorID uuid.UUID) (uuid.UUID, error) {
	d, err := r.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return uuid.Nil, err
	}
	return d.UserID, nil
}
