package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/records/internal/platform/db"
)

const recordAppointmentKey = "medical_records_appointment_id_key"

type recordRepoPG struct {
	pool *pgxpool.Pool
}

var _ RecordRepository = (*recordRepoPG)(nil)

func NewRecordRepo(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

const recordSelect = `SELECT r.id, r.appointment_id, r.patient_id, r.doctor_id, r.diagnosis,
	r.treatment, r.prescription, r.notes, r.record_date, r.created_at,
	a.scheduled_at, p.first_name || ' ' || p.last_name, d.first_name || ' ' || d.last_name, d.specialty
	FROM medical_records r
	JOIN appointments a ON a.id = r.appointment_id
	JOIN patients p ON p.id = r.patient_id
	JOIN doctors d ON d.id = r.doctor_id`

func (r *recordRepoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO medical_records (id, appointment_id, patient_id, doctor_id, diagnosis,
			treatment, prescription, notes, record_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.AppointmentID, rec.PatientID, rec.DoctorID, rec.Diagnosis,
		rec.Treatment, rec.Prescription, rec.Notes, rec.RecordDate, rec.CreatedAt,
	)
	if db.IsUniqueViolation(err, recordAppointmentKey) {
		return ErrRecordExists
	}
	if err != nil {
		return fmt.Errorf("insert medical record: %w", err)
	}
	return nil
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx, recordSelect+` WHERE r.id = $1`, id))
}

func (r *recordRepoPG) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx, recordSelect+` WHERE r.appointment_id = $1`, appointmentID))
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, dr DateRange) ([]*MedicalRecord, error) {
	conds := []string{"r.patient_id = $1"}
	args := []any{patientID}
	if dr.From != nil {
		args = append(args, *dr.From)
		conds = append(conds, fmt.Sprintf("r.record_date >= $%d", len(args)))
	}
	if dr.To != nil {
		args = append(args, *dr.To)
		conds = append(conds, fmt.Sprintf("r.record_date <= $%d", len(args)))
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		recordSelect+` WHERE `+strings.Join(conds, " AND ")+` ORDER BY r.record_date DESC, r.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list patient records: %w", err)
	}
	return collectRecords(rows)
}

func (r *recordRepoPG) List(ctx context.Context, limit, offset int) ([]*MedicalRecord, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM medical_records`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medical records: %w", err)
	}
	rows, err := conn.Query(ctx, recordSelect+` ORDER BY r.record_date DESC, r.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list medical records: %w", err)
	}
	items, err := collectRecords(rows)
	return items, total, err
}

func collectRecords(rows pgx.Rows) ([]*MedicalRecord, error) {
	defer rows.Close()
	var items []*MedicalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var rec MedicalRecord
	err := row.Scan(&rec.ID, &rec.AppointmentID, &rec.PatientID, &rec.DoctorID, &rec.Diagnosis,
		&rec.Treatment, &rec.Prescription, &rec.Notes, &rec.RecordDate, &rec.CreatedAt,
		&rec.AppointmentDate, &rec.PatientName, &rec.DoctorName, &rec.DoctorSpecialty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan medical record: %w", err)
	}
	return &rec, nil
}
