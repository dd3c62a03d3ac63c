package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/domain/identity"
)

type identityRepo struct{ s *Store }

func (r identityRepo) Create(ctx context.Context, u *identity.Identity) error {
	return r.s.write(ctx, func(t *tables) error {
		for _, existing := range t.identities {
			if existing.Email == u.Email {
				return identity.ErrEmailTaken
			}
		}
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		u.CreatedAt = r.s.now()
		u.UpdatedAt = u.CreatedAt
		t.identities[u.ID] = *u
		return nil
	})
}

func (r identityRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.Identity, error) {
	var out identity.Identity
	err := r.s.read(func(t *tables) error {
		u, ok := t.identities[id]
		if !ok {
			return identity.ErrIdentityNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r identityRepo) GetByEmail(_ context.Context, email string) (*identity.Identity, error) {
	var out *identity.Identity
	err := r.s.read(func(t *tables) error {
		for _, u := range t.identities {
			if u.Email == email {
				u := u
				out = &u
				return nil
			}
		}
		return identity.ErrIdentityNotFound
	})
	return out, err
}

func (r identityRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.s.write(ctx, func(t *tables) error {
		u, ok := t.identities[id]
		if !ok {
			return identity.ErrIdentityNotFound
		}
		u.Active = active
		u.UpdatedAt = r.s.now()
		t.identities[id] = u
		return nil
	})
}

type patientRepo struct{ s *Store }

func documentTaken(t *tables, p *identity.PatientRecord) bool {
	for _, existing := range t.patients {
		if existing.ID != p.ID && existing.DocumentNumber == p.DocumentNumber {
			return true
		}
	}
	return false
}

func (r patientRepo) Create(ctx context.Context, p *identity.PatientRecord) error {
	return r.s.write(ctx, func(t *tables) error {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if documentTaken(t, p) {
			return identity.ErrDocumentTaken
		}
		p.CreatedAt = r.s.now()
		p.UpdatedAt = p.CreatedAt
		t.patients[p.ID] = *p
		return nil
	})
}

func (r patientRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.PatientRecord, error) {
	return r.find(func(p identity.PatientRecord) bool { return p.ID == id })
}

func (r patientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*identity.PatientRecord, error) {
	return r.find(func(p identity.PatientRecord) bool { return p.UserID == userID })
}

func (r patientRepo) find(match func(identity.PatientRecord) bool) (*identity.PatientRecord, error) {
	var out *identity.PatientRecord
	err := r.s.read(func(t *tables) error {
		for _, p := range t.patients {
			if match(p) {
				p := p
				out = &p
				return nil
			}
		}
		return identity.ErrPatientNotFound
	})
	return out, err
}

// Update writes the demographic fields. The owner, active flag and
// creation time are kept from the stored row.
func (r patientRepo) Update(ctx context.Context, p *identity.PatientRecord) error {
	return r.s.write(ctx, func(t *tables) error {
		stored, ok := t.patients[p.ID]
		if !ok {
			return identity.ErrPatientNotFound
		}
		if documentTaken(t, p) {
			return identity.ErrDocumentTaken
		}
		p.UserID = stored.UserID
		p.Active = stored.Active
		p.CreatedAt = stored.CreatedAt
		p.UpdatedAt = r.s.now()
		t.patients[p.ID] = *p
		return nil
	})
}

func (r patientRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.s.write(ctx, func(t *tables) error {
		p, ok := t.patients[id]
		if !ok {
			return identity.ErrPatientNotFound
		}
		p.Active = false
		p.UpdatedAt = r.s.now()
		t.patients[id] = p
		return nil
	})
}

func (r patientRepo) List(_ context.Context, limit, offset int) ([]*identity.PatientRecord, int, error) {
	return r.active(func(identity.PatientRecord) bool { return true }, limit, offset)
}

func (r patientRepo) Search(_ context.Context, term string, limit, offset int) ([]*identity.PatientRecord, int, error) {
	term = strings.ToLower(term)
	return r.active(func(p identity.PatientRecord) bool {
		for _, field := range []string{p.FirstName, p.LastName, p.DocumentNumber, p.Email} {
			if strings.Contains(strings.ToLower(field), term) {
				return true
			}
		}
		return false
	}, limit, offset)
}

// active returns matching active patients ordered by last name, first name, id.
func (r patientRepo) active(match func(identity.PatientRecord) bool, limit, offset int) ([]*identity.PatientRecord, int, error) {
	var out []*identity.PatientRecord
	_ = r.s.read(func(t *tables) error {
		for _, p := range t.patients {
			if p.Active && match(p) {
				p := p
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID.String() < b.ID.String()
	})
	return page(out, limit, offset), len(out), nil
}

type doctorRepo struct{ s *Store }

func (r doctorRepo) Create(ctx context.Context, d *identity.DoctorRecord) error {
	return r.s.write(ctx, func(t *tables) error {
		for _, existing := range t.doctors {
			if existing.LicenseNumber == d.LicenseNumber {
				return identity.ErrLicenseTaken
			}
		}
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.CreatedAt = r.s.now()
		t.doctors[d.ID] = *d
		return nil
	})
}

func (r doctorRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.DoctorRecord, error) {
	return r.find(func(d identity.DoctorRecord) bool { return d.ID == id })
}

func (r doctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*identity.DoctorRecord, error) {
	return r.find(func(d identity.DoctorRecord) bool { return d.UserID == userID })
}

func (r doctorRepo) find(match func(identity.DoctorRecord) bool) (*identity.DoctorRecord, error) {
	var out *identity.DoctorRecord
	err := r.s.read(func(t *tables) error {
		for _, d := range t.doctors {
			if match(d) {
				d := d
				out = &d
				return nil
			}
		}
		return identity.ErrDoctorNotFound
	})
	return out, err
}
