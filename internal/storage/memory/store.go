// Package memory is a thread-safe in-process implementation of every
// repository, used for local development and end-to-end tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/identity"
	"github.com/ehr/records/internal/domain/scheduling"
	"github.com/ehr/records/pkg/pagination"
)

type txKey struct{}

// Store holds all tables behind one lock. Writes outside WithinTx are
// serialized with transactions, so a rollback never discards another
// caller's committed write.
type Store struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	data  *tables
	clock func() time.Time
}

type tables struct {
	identities   map[uuid.UUID]identity.Identity
	patients     map[uuid.UUID]identity.PatientRecord
	doctors      map[uuid.UUID]identity.DoctorRecord
	appointments map[uuid.UUID]scheduling.Appointment
	records      map[uuid.UUID]clinical.MedicalRecord
}

func newTables() *tables {
	return &tables{
		identities:   make(map[uuid.UUID]identity.Identity),
		patients:     make(map[uuid.UUID]identity.PatientRecord),
		doctors:      make(map[uuid.UUID]identity.DoctorRecord),
		appointments: make(map[uuid.UUID]scheduling.Appointment),
		records:      make(map[uuid.UUID]clinical.MedicalRecord),
	}
}

// clone copies every row. Rows are values; their pointer fields are never
// mutated in place, so sharing them is safe.
func (t *tables) clone() *tables {
	out := newTables()
	for k, v := range t.identities {
		out.identities[k] = v
	}
	for k, v := range t.patients {
		out.patients[k] = v
	}
	for k, v := range t.doctors {
		out.doctors[k] = v
	}
	for k, v := range t.appointments {
		out.appointments[k] = v
	}
	for k, v := range t.records {
		out.records[k] = v
	}
	return out
}

// New creates an empty Store. A nil clock means time.Now.
func New(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{data: newTables(), clock: clock}
}

var _ identity.TxRunner = (*Store)(nil)

// WithinTx runs fn with exclusive write access. When fn fails every change
// it made is rolled back. Nested calls join the outer unit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, s))
}

func (s *Store) restore(snapshot *tables) {
	s.mu.Lock()
	s.data = snapshot
	s.mu.Unlock()
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

func (s *Store) write(ctx context.Context, fn func(t *tables) error) error {
	if !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) read(fn func(t *tables) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// Identities returns the identity repository view.
func (s *Store) Identities() identity.IdentityRepository { return identityRepo{s} }

// Patients returns the patient repository view.
func (s *Store) Patients() identity.PatientRepository { return patientRepo{s} }

// Doctors returns the doctor repository view.
func (s *Store) Doctors() identity.DoctorRepository { return doctorRepo{s} }

// Appointments returns the appointment repository view.
func (s *Store) Appointments() scheduling.AppointmentRepository { return appointmentRepo{s} }

// Records returns the medical record repository view.
func (s *Store) Records() clinical.RecordRepository { return recordRepo{s} }

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(items))
	return items[start:end]
}
