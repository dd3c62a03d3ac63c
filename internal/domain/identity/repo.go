package identity

import (
	"context"

	"github.com/google/uuid"
)

type IdentityRepository interface {
	Create(ctx context.Context, u *Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type PatientRepository interface {
	Create(ctx context.Context, p *PatientRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientRecord, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*PatientRecord, error)
	Update(ctx context.Context, p *PatientRecord) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	// List and Search return active patients only.
	List(ctx context.Context, limit, offset int) ([]*PatientRecord, int, error)
	Search(ctx context.Context, term string, limit, offset int) ([]*PatientRecord, int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *DoctorRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*DoctorRecord, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*DoctorRecord, error)
}

// TxRunner runs fn as one all-or-nothing unit.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
