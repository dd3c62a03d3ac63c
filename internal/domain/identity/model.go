package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
)

// Identity maps to the identities table.
type Identity struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserName     string    `db:"user_name" json:"user_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         auth.Role `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Subject returns the token subject for the identity.
func (i *Identity) Subject() auth.Subject {
	return auth.Subject{ID: i.ID, Name: i.UserName, Email: i.Email, Role: i.Role}
}

// PatientRecord maps to the patients table.
type PatientRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	DocumentType   string    `db:"document_type" json:"document_type"`
	DocumentNumber string    `db:"document_number" json:"document_number"`
	FirstName      string    `db:"first_name" json:"first_name"`
	LastName       string    `db:"last_name" json:"last_name"`
	BirthDate      time.Time `db:"birth_date" json:"birth_date"`
	Email          string    `db:"email" json:"email"`
	Gender         string    `db:"gender" json:"gender"`
	Address        *string   `db:"address" json:"address,omitempty"`
	PhoneNumber    *string   `db:"phone_number" json:"phone_number,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (p *PatientRecord) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// DoctorRecord maps to the doctors table.
type DoctorRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	FirstName     string    `db:"first_name" json:"first_name"`
	LastName      string    `db:"last_name" json:"last_name"`
	Specialty     string    `db:"specialty" json:"specialty"`
	LicenseNumber string    `db:"license_number" json:"license_number"`
	Email         string    `db:"email" json:"email"`
	PhoneNumber   *string   `db:"phone_number" json:"phone_number,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

func (d *DoctorRecord) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

var (
	ErrIdentityNotFound   = apperr.New(apperr.KindNotFound, "identity_not_found", "user not found")
	ErrPatientNotFound    = apperr.New(apperr.KindNotFound, "patient_not_found", "patient not found")
	ErrDoctorNotFound     = apperr.New(apperr.KindNotFound, "doctor_not_found", "doctor not found")
	ErrEmailTaken         = apperr.New(apperr.KindConflict, "email_taken", "a user with this email already exists")
	ErrDocumentTaken      = apperr.New(apperr.KindConflict, "document_taken", "a patient with this document number already exists")
	ErrLicenseTaken       = apperr.New(apperr.KindConflict, "license_taken", "a doctor with this license number already exists")
	ErrRoleNotAllowed     = apperr.New(apperr.KindValidation, "role_not_allowed", "role is not open for registration")
	ErrSearchTermTooShort = apperr.New(apperr.KindValidation, "search_term_too_short", "search term must be at least 2 characters")
)

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
