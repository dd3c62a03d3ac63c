package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/domain/scheduling"
)

type appointmentRepo struct{ s *Store }

func (r appointmentRepo) Create(ctx context.Context, a *scheduling.Appointment) error {
	return r.s.write(ctx, func(t *tables) error {
		stored := *a
		stored.PatientName, stored.DoctorName, stored.DoctorSpecialty = "", "", ""
		t.appointments[a.ID] = stored
		return nil
	})
}

func (r appointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	var out *scheduling.Appointment
	err := r.s.read(func(t *tables) error {
		a, ok := t.appointments[id]
		if !ok {
			return scheduling.ErrAppointmentNotFound
		}
		out = withNames(t, a)
		return nil
	})
	return out, err
}

// GetForUpdate relies on the transaction lock held by WithinTx.
func (r appointmentRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	return r.GetByID(ctx, id)
}

func (r appointmentRepo) UpdateStatus(ctx context.Context, a *scheduling.Appointment, expectedVersion int) error {
	return r.s.write(ctx, func(t *tables) error {
		stored, ok := t.appointments[a.ID]
		if !ok {
			return scheduling.ErrAppointmentNotFound
		}
		if stored.VersionID != expectedVersion {
			return scheduling.ErrVersionConflict
		}
		stored.Status = a.Status
		stored.UpdatedAt = a.UpdatedAt
		stored.VersionID++
		t.appointments[a.ID] = stored
		a.VersionID = stored.VersionID
		return nil
	})
}

func (r appointmentRepo) List(_ context.Context, f scheduling.ListFilter, limit, offset int) ([]*scheduling.Appointment, int, error) {
	var out []*scheduling.Appointment
	_ = r.s.read(func(t *tables) error {
		for _, a := range t.appointments {
			a := a
			if f.Matches(&a) {
				out = append(out, withNames(t, a))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), len(out), nil
}

func withNames(t *tables, a scheduling.Appointment) *scheduling.Appointment {
	if p, ok := t.patients[a.PatientID]; ok {
		a.PatientName = p.FullName()
	}
	if d, ok := t.doctors[a.DoctorID]; ok {
		a.DoctorName = d.FullName()
		a.DoctorSpecialty = d.Specialty
	}
	return &a
}
