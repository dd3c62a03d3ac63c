package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/db"
)

var (
	_ IdentityRepository = (*identityRepoPG)(nil)
	_ PatientRepository  = (*patientRepoPG)(nil)
	_ DoctorRepository   = (*doctorRepoPG)(nil)
)

// -- Identity Repository --

type identityRepoPG struct {
	pool *pgxpool.Pool
}

func NewIdentityRepo(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepoPG{pool: pool}
}

const identityCols = `id, user_name, email, password_hash, role, active, created_at, updated_at`

func (r *identityRepoPG) Create(ctx context.Context, u *Identity) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO identities (id, user_name, email, password_hash, role, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		u.ID, u.UserName, u.Email, u.PasswordHash, string(u.Role), u.Active,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err, "identities_email_key") {
		return ErrEmailTaken.Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (r *identityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return scanIdentity(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+identityCols+` FROM identities WHERE id = $1`, id))
}

func (r *identityRepoPG) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	return scanIdentity(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+identityCols+` FROM identities WHERE email = $1`, email))
}

func (r *identityRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE identities SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func scanIdentity(row pgx.Row) (*Identity, error) {
	var (
		u    Identity
		role string
	)
	err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.PasswordHash, &role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	u.Role = auth.Role(role)
	return &u, nil
}

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, user_id, document_type, document_number, first_name, last_name,
	birth_date, email, gender, address, phone_number, active, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *PatientRecord) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (
			id, user_id, document_type, document_number, first_name, last_name,
			birth_date, email, gender, address, phone_number, active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.DocumentType, p.DocumentNumber, p.FirstName, p.LastName,
		p.BirthDate, p.Email, p.Gender, p.Address, p.PhoneNumber, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "patients_document_number_key") {
		return ErrDocumentTaken.Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientRecord, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*PatientRecord, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE user_id = $1`, userID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *PatientRecord) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patients SET
			document_type = $2, document_number = $3, first_name = $4, last_name = $5,
			birth_date = $6, email = $7, gender = $8, address = $9, phone_number = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.DocumentType, p.DocumentNumber, p.FirstName, p.LastName,
		p.BirthDate, p.Email, p.Gender, p.Address, p.PhoneNumber,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPatientNotFound
	}
	if db.IsUniqueViolation(err, "patients_document_number_key") {
		return ErrDocumentTaken.Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE patients SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*PatientRecord, int, error) {
	return r.page(ctx, `active`, nil, limit, offset)
}

func (r *patientRepoPG) Search(ctx context.Context, term string, limit, offset int) ([]*PatientRecord, int, error) {
	where := `active AND (first_name ILIKE $1 OR last_name ILIKE $1 OR document_number ILIKE $1 OR email ILIKE $1)`
	return r.page(ctx, where, []any{"%" + escapeLike(term) + "%"}, limit, offset)
}

func (r *patientRepoPG) page(ctx context.Context, where string, args []any, limit, offset int) ([]*PatientRecord, int, error) {
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM patients WHERE %s ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d`,
		patientCols, where, n+1, n+2)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var items []*PatientRecord
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func scanPatient(row pgx.Row) (*PatientRecord, error) {
	var p PatientRecord
	err := row.Scan(
		&p.ID, &p.UserID, &p.DocumentType, &p.DocumentNumber, &p.FirstName, &p.LastName,
		&p.BirthDate, &p.Email, &p.Gender, &p.Address, &p.PhoneNumber, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

const doctorCols = `id, user_id, first_name, last_name, specialty, license_number, email, phone_number, created_at`

func (r *doctorRepoPG) Create(ctx context.Context, d *DoctorRecord) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, first_name, last_name, specialty, license_number, email, phone_number)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		d.ID, d.UserID, d.FirstName, d.LastName, d.Specialty, d.LicenseNumber, d.Email, d.PhoneNumber,
	).Scan(&d.CreatedAt)
	if db.IsUniqueViolation(err, "doctors_license_number_key") {
		return ErrLicenseTaken.Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DoctorRecord, error) {
	return scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*DoctorRecord, error) {
	return scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE user_id = $1`, userID))
}

func scanDoctor(row pgx.Row) (*DoctorRecord, error) {
	var d DoctorRecord
	err := row.Scan(&d.ID, &d.UserID, &d.FirstName, &d.LastName, &d.Specialty, &d.LicenseNumber,
		&d.Email, &d.PhoneNumber, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan doctor: %w", err)
	}
	return &d, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
