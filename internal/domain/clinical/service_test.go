package clinical

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/records/internal/domain/identity"
	"github.com/ehr/records/internal/domain/scheduling"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/document"
	"github.com/ehr/records/internal/platform/events"
)

// -- Mocks --

type mockRecordRepo struct {
	items map[uuid.UUID]*MedicalRecord
}

func (m *mockRecordRepo) Create(_ context.Context, r *MedicalRecord) error {
	for _, existing := range m.items {
		if existing.AppointmentID == r.AppointmentID {
			return ErrRecordExists
		}
	}
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalRecord, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRecordRepo) GetByAppointmentID(_ context.Context, appointmentID uuid.UUID) (*MedicalRecord, error) {
	for _, r := range m.items {
		if r.AppointmentID == appointmentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *mockRecordRepo) ListByPatient(_ context.Context, patientID uuid.UUID, dr DateRange) ([]*MedicalRecord, error) {
	var out []*MedicalRecord
	for _, r := range m.items {
		if r.PatientID == patientID && dr.Contains(r.RecordDate) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordDate.After(out[j].RecordDate) })
	return out, nil
}

func (m *mockRecordRepo) List(_ context.Context, limit, offset int) ([]*MedicalRecord, int, error) {
	var out []*MedicalRecord
	for _, r := range m.items {
		out = append(out, r)
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	if end := offset + limit; end < total {
		out = out[:end]
	}
	return out[offset:], total, nil
}

type mockAppointments struct {
	scheduling.AppointmentRepository
	items  map[uuid.UUID]*scheduling.Appointment
	locked []uuid.UUID
}

func (m *mockAppointments) GetForUpdate(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, scheduling.ErrAppointmentNotFound
	}
	m.locked = append(m.locked, id)
	cp := *a
	return &cp, nil
}

type mockPatients struct {
	identity.PatientRepository
	items map[uuid.UUID]*identity.PatientRecord
}

func (m *mockPatients) GetByID(_ context.Context, id uuid.UUID) (*identity.PatientRecord, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, identity.ErrPatientNotFound
	}
	return p, nil
}

type mockDoctors struct {
	identity.DoctorRepository
	items map[uuid.UUID]*identity.DoctorRecord
}

func (m *mockDoctors) GetByID(_ context.Context, id uuid.UUID) (*identity.DoctorRecord, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, identity.ErrDoctorNotFound
	}
	return d, nil
}

// countingTx runs fn directly and counts units of work.
type countingTx struct {
	calls int
}

func (t *countingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type stubRenderer struct {
	patient document.PatientSummary
	entries []document.HistoryEntry
	err     error
}

func (r *stubRenderer) Render(p document.PatientSummary, entries []document.HistoryEntry, _ time.Time) ([]byte, error) {
	r.patient, r.entries = p, entries
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-stub"), nil
}

type fixture struct {
	svc          *Service
	records      *mockRecordRepo
	appointments *mockAppointments
	renderer     *stubRenderer
	events       *events.MemoryPublisher
	tx           *countingTx
	patient      *identity.PatientRecord
	doctor       *identity.DoctorRecord
	now          time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		records:      &mockRecordRepo{items: map[uuid.UUID]*MedicalRecord{}},
		appointments: &mockAppointments{items: map[uuid.UUID]*scheduling.Appointment{}},
		renderer:     &stubRenderer{},
		events:       events.NewMemoryPublisher(),
		tx:           &countingTx{},
		now:          time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		patient: &identity.PatientRecord{
			ID: uuid.New(), UserID: uuid.New(), FirstName: "Ana", LastName: "Lopez",
			DocumentNumber: "1001", Active: true,
		},
		doctor: &identity.DoctorRecord{ID: uuid.New(), UserID: uuid.New(), FirstName: "Juan", LastName: "Perez"},
	}
	patients := &mockPatients{items: map[uuid.UUID]*identity.PatientRecord{f.patient.ID: f.patient}}
	doctors := &mockDoctors{items: map[uuid.UUID]*identity.DoctorRecord{f.doctor.ID: f.doctor}}
	guard := auth.NewGuard(auth.NewPolicyEngine(auth.DefaultPolicies()), identity.NewOwnerResolver(patients, doctors))

	f.svc = NewService(Deps{
		Tx:           f.tx,
		Records:      f.records,
		Appointments: f.appointments,
		Patients:     patients,
		Guard:        guard,
		Renderer:     f.renderer,
		Events:       f.events,
		Clock:        func() time.Time { return f.now },
		Logger:       zerolog.Nop(),
	})
	return f
}

func (f *fixture) appointment(status scheduling.Status) *scheduling.Appointment {
	a := scheduling.NewAppointment(f.patient.ID, f.doctor.ID, f.now.Add(-time.Hour), nil, f.now.Add(-48*time.Hour))
	a.Status = status
	a.PatientName = "Ana Lopez"
	a.DoctorName = "Juan Perez"
	a.DoctorSpecialty = "Cardiology"
	f.appointments.items[a.ID] = a
	return a
}

func staff(role auth.Role) auth.Principal {
	return auth.Principal{SubjectID: uuid.New(), Role: role}
}

func (f *fixture) patientPrincipal() auth.Principal {
	return auth.Principal{SubjectID: f.patient.UserID, Role: auth.RolePatient}
}

func strPtr(s string) *string { return &s }

// -- Create --

func TestCreate_DerivesParticipantsFromAppointment(t *testing.T) {
	f := newFixture(t)
	a := f.appointment(scheduling.StatusScheduled)

	rec, err := f.svc.Create(context.Background(), staff(auth.RoleDoctor), CreateRequest{
		AppointmentID: a.ID,
		Diagnosis:     "  Flu ",
		Treatment:     strPtr("rest"),
		Notes:         strPtr("   "),
	})
	require.NoError(t, err)
	assert.Equal(t, a.PatientID, rec.PatientID)
	assert.Equal(t, a.DoctorID, rec.DoctorID)
	assert.Equal(t, "Flu", rec.Diagnosis)
	assert.Equal(t, "rest", *rec.Treatment)
	assert.Nil(t, rec.Notes)
	assert.Equal(t, f.now, rec.RecordDate)
	assert.Equal(t, "Cardiology", rec.DoctorSpecialty)
	assert.Equal(t, []uuid.UUID{a.ID}, f.appointments.locked)
	assert.Equal(t, 1, f.tx.calls)

	evs := f.events.OfType(events.MedicalRecordCreated)
	require.Len(t, evs, 1)
	assert.Equal(t, a.ID.String(), evs[0].Key)
}

func TestCreate_GateOrder(t *testing.T) {
	f := newFixture(t)
	scheduled := f.appointment(scheduling.StatusScheduled)
	completed := f.appointment(scheduling.StatusCompleted)
	cancelled := f.appointment(scheduling.StatusCancelled)
	ctx := context.Background()

	tests := []struct {
		name string
		p    auth.Principal
		req  CreateRequest
		want error
	}{
		{"employee denied before validation", staff(auth.RoleEmployee), CreateRequest{AppointmentID: uuid.New()}, auth.ErrForbidden},
		{"patient denied", f.patientPrincipal(), CreateRequest{AppointmentID: scheduled.ID, Diagnosis: "X"}, auth.ErrForbidden},
		{"blank diagnosis before lookup", staff(auth.RoleAdmin), CreateRequest{AppointmentID: uuid.New(), Diagnosis: " \t"}, ErrDiagnosisRequired},
		{"unknown appointment", staff(auth.RoleAdmin), CreateRequest{AppointmentID: uuid.New(), Diagnosis: "X"}, scheduling.ErrAppointmentNotFound},
		{"completed", staff(auth.RoleDoctor), CreateRequest{AppointmentID: completed.ID, Diagnosis: "X"}, ErrInvalidState},
		{"cancelled", staff(auth.RoleDoctor), CreateRequest{AppointmentID: cancelled.ID, Diagnosis: "X"}, ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.p, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.records.items)
	assert.Empty(t, f.events.Events())
}

func TestCreate_OneRecordPerAppointment(t *testing.T) {
	f := newFixture(t)
	a := f.appointment(scheduling.StatusScheduled)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, staff(auth.RoleDoctor), CreateRequest{AppointmentID: a.ID, Diagnosis: "Flu"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, staff(auth.RoleAdmin), CreateRequest{AppointmentID: a.ID, Diagnosis: "Cold"})
	assert.ErrorIs(t, err, ErrRecordExists)
	assert.Len(t, f.records.items, 1)
}

func TestCreate_CancelledAfterRecordIsInvalidState(t *testing.T) {
	f := newFixture(t)
	a := f.appointment(scheduling.StatusScheduled)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, staff(auth.RoleDoctor), CreateRequest{AppointmentID: a.ID, Diagnosis: "X"})
	require.NoError(t, err)
	assert.Equal(t, f.patient.ID, rec.PatientID)

	f.appointments.items[a.ID].Status = scheduling.StatusCancelled
	_, err = f.svc.Create(ctx, staff(auth.RoleDoctor), CreateRequest{AppointmentID: a.ID, Diagnosis: "X"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

// -- Reads --

func (f *fixture) seed(t *testing.T, at time.Time, diagnosis string) *MedicalRecord {
	t.Helper()
	a := f.appointment(scheduling.StatusScheduled)
	f.now = at
	rec, err := f.svc.Create(context.Background(), staff(auth.RoleAdmin), CreateRequest{AppointmentID: a.ID, Diagnosis: diagnosis})
	require.NoError(t, err)
	return rec
}

func TestGet_OwnershipHidesOthers(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, f.now, "Flu")
	ctx := context.Background()

	_, err := f.svc.Get(ctx, f.patientPrincipal(), rec.ID)
	require.NoError(t, err)

	stranger := auth.Principal{SubjectID: uuid.New(), Role: auth.RolePatient}
	_, err = f.svc.Get(ctx, stranger, rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = f.svc.Get(ctx, staff(auth.RoleEmployee), rec.ID)
	assert.NoError(t, err)
}

func TestList_StaffOnly(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.now, "Flu")
	ctx := context.Background()

	items, total, err := f.svc.List(ctx, staff(auth.RoleDoctor), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)

	_, _, err = f.svc.List(ctx, f.patientPrincipal(), 10, 0)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestHistory_DateRangeInclusive(t *testing.T) {
	f := newFixture(t)
	jan := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	mar := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f.seed(t, jan, "A")
	f.seed(t, feb, "B")
	f.seed(t, mar, "C")
	ctx := context.Background()

	all, err := f.svc.History(ctx, f.patientPrincipal(), f.patient.ID, DateRange{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "C", all[0].Diagnosis)

	got, err := f.svc.History(ctx, staff(auth.RoleDoctor), f.patient.ID, DateRange{From: &feb, To: &mar})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "C", got[0].Diagnosis)
	assert.Equal(t, "B", got[1].Diagnosis)

	_, err = f.svc.History(ctx, staff(auth.RoleDoctor), f.patient.ID, DateRange{From: &mar, To: &jan})
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestHistory_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stranger := auth.Principal{SubjectID: uuid.New(), Role: auth.RolePatient}
	_, err := f.svc.History(ctx, stranger, f.patient.ID, DateRange{})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.History(ctx, staff(auth.RoleAdmin), uuid.New(), DateRange{})
	assert.ErrorIs(t, err, identity.ErrPatientNotFound)
}

func TestHistory_DeactivatedPatientIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), "Flu")
	f.patient.Active = false
	ctx := context.Background()

	_, err := f.svc.History(ctx, staff(auth.RoleAdmin), f.patient.ID, DateRange{})
	assert.ErrorIs(t, err, identity.ErrPatientNotFound)

	_, err = f.svc.HistoryDocument(ctx, staff(auth.RoleAdmin), f.patient.ID, DateRange{})
	assert.ErrorIs(t, err, identity.ErrPatientNotFound)
	assert.Nil(t, f.renderer.entries)
}

func TestHistoryDocument(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), "Flu")
	f.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	doc, err := f.svc.HistoryDocument(context.Background(), f.patientPrincipal(), f.patient.ID, DateRange{})
	require.NoError(t, err)
	assert.Equal(t, "medical_history_Ana_Lopez_20260504.pdf", doc.FileName)
	assert.Equal(t, document.ContentType, doc.ContentType)
	assert.Equal(t, []byte("%PDF-stub"), doc.Data)
	assert.Equal(t, "1001", f.renderer.patient.DocumentNumber)
	require.Len(t, f.renderer.entries, 1)
	assert.Equal(t, "Juan Perez", f.renderer.entries[0].DoctorName)
}

func TestHistoryDocument_RenderFailure(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = errors.New("font missing")

	_, err := f.svc.HistoryDocument(context.Background(), staff(auth.RoleAdmin), f.patient.ID, DateRange{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "font missing")
}

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("2026-01-01", "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *r.From)
	assert.True(t, r.Contains(time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))

	r, err = ParseDateRange("2026-01-01T08:00:00-05:00", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC), *r.From)
	assert.Nil(t, r.To)

	_, err = ParseDateRange("01/02/2026", "")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ParseDateRange("2026-02-01", "2026-01-01")
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}
