package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
)

// MinPasswordLen is the shortest secret accepted at registration.
const MinPasswordLen = 6

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates an identity. Patient and Doctor registrations
// carry the fields of their dependent record.
type RegisterRequest struct {
	UserName string `json:"user_name" validate:"required,notblank,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=Patient Doctor Employee Admin"`

	DocumentType   string     `json:"document_type" validate:"omitempty,max=10"`
	DocumentNumber string     `json:"document_number" validate:"omitempty,max=20"`
	FirstName      string     `json:"first_name" validate:"omitempty,max=100"`
	LastName       string     `json:"last_name" validate:"omitempty,max=100"`
	BirthDate      *time.Time `json:"birth_date"`
	Gender         string     `json:"gender" validate:"omitempty,max=20"`
	Address        *string    `json:"address" validate:"omitempty,max=500"`
	PhoneNumber    *string    `json:"phone_number" validate:"omitempty,max=20"`

	Specialty     string `json:"specialty" validate:"omitempty,max=100"`
	LicenseNumber string `json:"license_number" validate:"omitempty,max=50"`
}

// PatientRequest is the body of staff patient creation and of updates.
type PatientRequest struct {
	DocumentType   string    `json:"document_type" validate:"required,notblank,max=10"`
	DocumentNumber string    `json:"document_number" validate:"required,notblank,max=20"`
	FirstName      string    `json:"first_name" validate:"required,notblank,max=100"`
	LastName       string    `json:"last_name" validate:"required,notblank,max=100"`
	BirthDate      time.Time `json:"birth_date" validate:"required"`
	Email          string    `json:"email" validate:"required,email"`
	Gender         string    `json:"gender" validate:"required,notblank,max=20"`
	Address        *string   `json:"address" validate:"omitempty,max=500"`
	PhoneNumber    *string   `json:"phone_number" validate:"omitempty,max=20"`
}

func (r *PatientRequest) check() error {
	if strings.TrimSpace(r.DocumentType) == "" || strings.TrimSpace(r.DocumentNumber) == "" ||
		strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" ||
		r.BirthDate.IsZero() || strings.TrimSpace(r.Gender) == "" {
		return apperr.Validation("document_type, document_number, first_name, last_name, birth_date and gender are required")
	}
	if NormalizeEmail(r.Email) == "" {
		return apperr.Validation("email is required")
	}
	return nil
}

func (r *PatientRequest) apply(p *PatientRecord) {
	p.DocumentType = strings.TrimSpace(r.DocumentType)
	p.DocumentNumber = strings.TrimSpace(r.DocumentNumber)
	p.FirstName = strings.TrimSpace(r.FirstName)
	p.LastName = strings.TrimSpace(r.LastName)
	p.BirthDate = r.BirthDate
	p.Email = NormalizeEmail(r.Email)
	p.Gender = strings.TrimSpace(r.Gender)
	p.Address = r.Address
	p.PhoneNumber = r.PhoneNumber
}

// AuthResult is returned by login and registration.
type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *Identity `json:"user"`
}

// CreatedPatient carries the one-time temporary password of a patient
// created by staff.
type CreatedPatient struct {
	Patient           *PatientRecord `json:"patient"`
	TemporaryPassword string         `json:"temporary_password"`
}

type Options struct {
	// SignupRoles limits public registration. Empty means every role.
	SignupRoles []auth.Role
	Logger      zerolog.Logger
}

type Service struct {
	tx          TxRunner
	users       IdentityRepository
	patients    PatientRepository
	doctors     DoctorRepository
	tokens      *auth.TokenService
	guard       *auth.Guard
	signupRoles map[auth.Role]bool
	logger      zerolog.Logger
}

func NewService(tx TxRunner, users IdentityRepository, patients PatientRepository, doctors DoctorRepository,
	tokens *auth.TokenService, guard *auth.Guard, opts Options) *Service {
	roles := opts.SignupRoles
	if len(roles) == 0 {
		roles = auth.Roles
	}
	allowed := make(map[auth.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return &Service{
		tx:          tx,
		users:       users,
		patients:    patients,
		doctors:     doctors,
		tokens:      tokens,
		guard:       guard,
		signupRoles: allowed,
		logger:      opts.Logger,
	}
}

// -- Authentication --

// Login verifies credentials and issues a token. Every failure is
// auth.ErrInvalidCredentials; the reason is only logged.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, fmt.Errorf("login: %w", err)
		}
		auth.BurnPasswordCheck(password)
		s.logger.Warn().Str("email", email).Str("reason", "unknown email").Msg("login failed")
		return nil, auth.ErrInvalidCredentials
	}
	if !auth.VerifyPassword(password, u.PasswordHash) {
		s.logger.Warn().Str("email", email).Str("reason", "wrong password").Msg("login failed")
		return nil, auth.ErrInvalidCredentials
	}
	if !u.Active {
		s.logger.Warn().Str("email", email).Str("reason", "inactive").Msg("login failed")
		return nil, auth.ErrInvalidCredentials
	}

	tok, err := s.tokens.IssueToken(u.Subject())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info().Str("email", email).Str("role", string(u.Role)).Msg("login succeeded")
	return &AuthResult{Token: tok.Token, ExpiresAt: tok.ExpiresAt, User: u}, nil
}

// Register creates an identity and, for patients and doctors, the dependent
// record in one transaction, then logs the new identity in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		return nil, apperr.Validation("role must be one of: Admin, Doctor, Employee, Patient")
	}
	if !s.signupRoles[role] {
		return nil, ErrRoleNotAllowed
	}
	email := NormalizeEmail(req.Email)
	userName := strings.TrimSpace(req.UserName)
	if email == "" || userName == "" {
		return nil, apperr.Validation("user_name and email are required")
	}
	if utf8.RuneCountInString(req.Password) < MinPasswordLen {
		return nil, apperr.Validation(fmt.Sprintf("password must be at least %d characters", MinPasswordLen))
	}

	var (
		patient *PatientRecord
		doctor  *DoctorRecord
	)
	switch role {
	case auth.RolePatient:
		pr := PatientRequest{
			DocumentType:   req.DocumentType,
			DocumentNumber: req.DocumentNumber,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			Email:          email,
			Gender:         req.Gender,
			Address:        req.Address,
			PhoneNumber:    req.PhoneNumber,
		}
		if req.BirthDate != nil {
			pr.BirthDate = *req.BirthDate
		}
		if err := pr.check(); err != nil {
			return nil, err
		}
		patient = &PatientRecord{Active: true}
		pr.apply(patient)
	case auth.RoleDoctor:
		if strings.TrimSpace(req.Specialty) == "" || strings.TrimSpace(req.LicenseNumber) == "" {
			return nil, apperr.Validation("specialty and license_number are required for doctors")
		}
		doctor = &DoctorRecord{
			FirstName:     strings.TrimSpace(req.FirstName),
			LastName:      strings.TrimSpace(req.LastName),
			Specialty:     strings.TrimSpace(req.Specialty),
			LicenseNumber: strings.TrimSpace(req.LicenseNumber),
			Email:         email,
			PhoneNumber:   req.PhoneNumber,
		}
		if doctor.FirstName == "" {
			doctor.FirstName = userName
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &Identity{UserName: userName, Email: email, PasswordHash: hash, Role: role, Active: true}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.createIdentity(ctx, u); err != nil {
			return err
		}
		switch {
		case patient != nil:
			patient.UserID = u.ID
			return s.patients.Create(ctx, patient)
		case doctor != nil:
			doctor.UserID = u.ID
			return s.doctors.Create(ctx, doctor)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("email", email).Str("role", string(role)).Msg("registration failed")
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(role)).Msg("identity registered")

	return s.Login(ctx, email, req.Password)
}

func (s *Service) createIdentity(ctx context.Context, u *Identity) error {
	_, err := s.users.GetByEmail(ctx, u.Email)
	switch {
	case err == nil:
		return ErrEmailTaken
	case !apperr.Is(err, apperr.KindNotFound):
		return fmt.Errorf("check email: %w", err)
	}
	return s.users.Create(ctx, u)
}

// Profile returns the caller's identity. A missing or inactive identity is
// reported as invalid credentials.
func (s *Service) Profile(ctx context.Context, p auth.Principal) (*Identity, error) {
	u, err := s.users.GetByID(ctx, p.SubjectID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.Active {
		return nil, auth.ErrInvalidCredentials
	}
	return u, nil
}

// IsActive implements auth.IdentityChecker.
func (s *Service) IsActive(ctx context.Context, id uuid.UUID) (bool, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return u.Active, nil
}

// DeactivateByEmail soft-deactivates an identity and its patient record.
func (s *Service) DeactivateByEmail(ctx context.Context, email string) (*Identity, error) {
	var u *Identity
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.users.GetByEmail(ctx, NormalizeEmail(email))
		if err != nil {
			return err
		}
		if err := s.users.SetActive(ctx, u.ID, false); err != nil {
			return err
		}
		u.Active = false
		if u.Role != auth.RolePatient {
			return nil
		}
		rec, err := s.patients.GetByUserID(ctx, u.ID)
		if errors.Is(err, ErrPatientNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.patients.Deactivate(ctx, rec.ID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("identity deactivated")
	return u, nil
}

// -- Patients --

func (s *Service) ListPatients(ctx context.Context, p auth.Principal, limit, offset int) ([]*PatientRecord, int, error) {
	if err := s.guard.Check(ctx, p, auth.OpPatientList, auth.NoScope); err != nil {
		return nil, 0, err
	}
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) SearchPatients(ctx context.Context, p auth.Principal, term string, limit, offset int) ([]*PatientRecord, int, error) {
	if err := s.guard.Check(ctx, p, auth.OpPatientSearch, auth.NoScope); err != nil {
		return nil, 0, err
	}
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < 2 {
		return nil, 0, ErrSearchTermTooShort
	}
	return s.patients.Search(ctx, term, limit, offset)
}

func (s *Service) GetPatient(ctx context.Context, p auth.Principal, id uuid.UUID) (*PatientRecord, error) {
	if err := s.guard.CheckRead(ctx, p, auth.OpPatientRead, auth.PatientScope(id), ErrPatientNotFound); err != nil {
		return nil, err
	}
	rec, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Active {
		return nil, ErrPatientNotFound
	}
	return rec, nil
}

// CreatePatient creates a Patient identity with a random temporary password
// and its patient record in one transaction.
func (s *Service) CreatePatient(ctx context.Context, p auth.Principal, req PatientRequest) (*CreatedPatient, error) {
	if err := s.guard.Check(ctx, p, auth.OpPatientCreate, auth.NoScope); err != nil {
		return nil, err
	}
	if err := req.check(); err != nil {
		return nil, err
	}

	secret, err := temporaryPassword()
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(secret)
	if err != nil {
		return nil, err
	}

	rec := &PatientRecord{Active: true}
	req.apply(rec)
	u := &Identity{
		UserName:     rec.FullName(),
		Email:        rec.Email,
		PasswordHash: hash,
		Role:         auth.RolePatient,
		Active:       true,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.createIdentity(ctx, u); err != nil {
			return err
		}
		rec.UserID = u.ID
		return s.patients.Create(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", rec.ID.String()).Str("created_by", p.SubjectID.String()).Msg("patient created")
	return &CreatedPatient{Patient: rec, TemporaryPassword: secret}, nil
}

func (s *Service) UpdatePatient(ctx context.Context, p auth.Principal, id uuid.UUID, req PatientRequest) (*PatientRecord, error) {
	if err := s.guard.Check(ctx, p, auth.OpPatientUpdate, auth.PatientScope(id)); err != nil {
		return nil, err
	}
	if err := req.check(); err != nil {
		return nil, err
	}
	rec, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Active {
		return nil, ErrPatientNotFound
	}
	req.apply(rec)
	if err := s.patients.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeletePatient deactivates the patient record and its identity.
func (s *Service) DeletePatient(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.guard.Check(ctx, p, auth.OpPatientDelete, auth.NoScope); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		rec, err := s.patients.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !rec.Active {
			return ErrPatientNotFound
		}
		if err := s.patients.Deactivate(ctx, id); err != nil {
			return err
		}
		return s.users.SetActive(ctx, rec.UserID, false)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", id.String()).Str("deleted_by", p.SubjectID.String()).Msg("patient deactivated")
	return nil
}

// -- Doctors --

func (s *Service) GetDoctor(ctx context.Context, p auth.Principal, id uuid.UUID) (*DoctorRecord, error) {
	if err := s.guard.CheckRead(ctx, p, auth.OpDoctorRead, auth.DoctorScope(id), ErrDoctorNotFound); err != nil {
		return nil, err
	}
	return s.doctors.GetByID(ctx, id)
}

func temporaryPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate temporary password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
