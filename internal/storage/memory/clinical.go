package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/domain/clinical"
)

type recordRepo struct{ s *Store }

func (r recordRepo) Create(ctx context.Context, rec *clinical.MedicalRecord) error {
	return r.s.write(ctx, func(t *tables) error {
		for _, existing := range t.records {
			if existing.AppointmentID == rec.AppointmentID {
				return clinical.ErrRecordExists
			}
		}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		stored := *rec
		stored.AppointmentDate = time.Time{}
		stored.PatientName, stored.DoctorName, stored.DoctorSpecialty = "", "", ""
		t.records[rec.ID] = stored
		return nil
	})
}

func (r recordRepo) GetByID(_ context.Context, id uuid.UUID) (*clinical.MedicalRecord, error) {
	return r.find(func(rec clinical.MedicalRecord) bool { return rec.ID == id })
}

func (r recordRepo) GetByAppointmentID(_ context.Context, appointmentID uuid.UUID) (*clinical.MedicalRecord, error) {
	return r.find(func(rec clinical.MedicalRecord) bool { return rec.AppointmentID == appointmentID })
}

func (r recordRepo) find(match func(clinical.MedicalRecord) bool) (*clinical.MedicalRecord, error) {
	var out *clinical.MedicalRecord
	err := r.s.read(func(t *tables) error {
		for _, rec := range t.records {
			if match(rec) {
				out = recordView(t, rec)
				return nil
			}
		}
		return clinical.ErrRecordNotFound
	})
	return out, err
}

func (r recordRepo) ListByPatient(_ context.Context, patientID uuid.UUID, dr clinical.DateRange) ([]*clinical.MedicalRecord, error) {
	out := r.collect(func(rec clinical.MedicalRecord) bool {
		return rec.PatientID == patientID && dr.Contains(rec.RecordDate)
	})
	return out, nil
}

func (r recordRepo) List(_ context.Context, limit, offset int) ([]*clinical.MedicalRecord, int, error) {
	out := r.collect(func(clinical.MedicalRecord) bool { return true })
	return page(out, limit, offset), len(out), nil
}

// collect returns matching records, newest record date first.
func (r recordRepo) collect(match func(clinical.MedicalRecord) bool) []*clinical.MedicalRecord {
	var out []*clinical.MedicalRecord
	_ = r.s.read(func(t *tables) error {
		for _, rec := range t.records {
			if match(rec) {
				out = append(out, recordView(t, rec))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordDate.Equal(out[j].RecordDate) {
			return out[i].RecordDate.After(out[j].RecordDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func recordView(t *tables, rec clinical.MedicalRecord) *clinical.MedicalRecord {
	if a, ok := t.appointments[rec.AppointmentID]; ok {
		rec.AppointmentDate = a.ScheduledAt
	}
	if p, ok := t.patients[rec.PatientID]; ok {
		rec.PatientName = p.FullName()
	}
	if d, ok := t.doctors[rec.DoctorID]; ok {
		rec.DoctorName = d.FullName()
		rec.DoctorSpecialty = d.Specialty
	}
	return &rec
}
