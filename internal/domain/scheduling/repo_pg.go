package scheduling

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

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

var _ AppointmentRepository = (*appointmentRepoPG)(nil)

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const appointmentSelect = `SELECT a.id, a.patient_id, a.doctor_id, a.scheduled_at, a.status, a.reason,
	a.version_id, a.created_at, a.updated_at,
	p.first_name || ' ' || p.last_name, d.first_name || ' ' || d.last_name, d.specialty
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id`

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, status, reason, version_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, string(a.Status), a.Reason, a.VersionID, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, appointmentSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id))
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, a *Appointment, expectedVersion int) error {
	conn := db.Conn(ctx, r.pool)
	var version int
	err := conn.QueryRow(ctx, `
		UPDATE appointments SET status = $3, version_id = version_id + 1, updated_at = $4
		WHERE id = $1 AND version_id = $2
		RETURNING version_id`,
		a.ID, expectedVersion, string(a.Status), a.UpdatedAt,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check appointment: %w", err)
		}
		if !exists {
			return ErrAppointmentNotFound
		}
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	a.VersionID = version
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != uuid.Nil {
		add("a.patient_id = $%d", f.PatientID)
	}
	if f.DoctorID != uuid.Nil {
		add("a.doctor_id = $%d", f.DoctorID)
	}
	if f.Status != "" {
		add("a.status = $%d", string(f.Status))
	}
	if f.ExcludeCancelled {
		add("a.status <> $%d", string(StatusCancelled))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := fmt.Sprintf(`%s%s ORDER BY a.scheduled_at DESC, a.id LIMIT $%d OFFSET $%d`,
		appointmentSelect, where, len(args)+1, len(args)+2)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		status string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &status, &a.Reason,
		&a.VersionID, &a.CreatedAt, &a.UpdatedAt,
		&a.PatientName, &a.DoctorName, &a.DoctorSpecialty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan appointment: %w", err)
	}
	a.Status = Status(status)
	return &a, nil
}
