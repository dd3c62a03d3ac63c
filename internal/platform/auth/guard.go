package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/apperr"
)

// ErrForbidden is returned for every policy denial. The reason is attached
// as the cause and never shown to the caller.
var ErrForbidden = apperr.New(apperr.KindAuthorization, "forbidden", "forbidden")

// OwnerResolver maps patient and doctor records to the identity that owns
// them. Implementations return an apperr NotFound error for unknown records.
type OwnerResolver interface {
	PatientOwner(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error)
	DoctorOwner(ctx context.Context, doctorID uuid.UUID) (uuid.UUID, error)
}

type scopeKind int

const (
	scopeNone scopeKind = iota
	scopePatient
	scopeDoctor
)

// Scope identifies the record whose owner gates a self-service operation.
type Scope struct {
	kind scopeKind
	id   uuid.UUID
}

// NoScope is used for operations with no owning record.
var NoScope = Scope{}

// PatientScope scopes an operation to the patient record id.
func PatientScope(patientID uuid.UUID) Scope { return Scope{kind: scopePatient, id: patientID} }

// DoctorScope scopes an operation to the doctor record id.
func DoctorScope(doctorID uuid.UUID) Scope { return Scope{kind: scopeDoctor, id: doctorID} }

// Guard runs the policy engine with the resource owner resolved server-side.
type Guard struct {
	engine *PolicyEngine
	owners OwnerResolver
}

// NewGuard creates a Guard.
func NewGuard(engine *PolicyEngine, owners OwnerResolver) *Guard {
	return &Guard{engine: engine, owners: owners}
}

// Check returns nil when p may perform op on scope and ErrForbidden
// otherwise. The owner lookup only happens when the staff tier does not
// already allow the caller.
func (g *Guard) Check(ctx context.Context, p Principal, op Operation, scope Scope) error {
	policy, ok := g.engine.Policy(op)
	if !ok {
		return ErrForbidden.Wrap(fmt.Errorf("no policy for %s", op))
	}

	req := Request{CallerRole: p.Role, CallerID: p.SubjectID, Operation: op}
	if !policy.AllowsStaff(p.Role) && policy.SelfService != "" && p.Role == policy.SelfService {
		owner, err := g.resolveOwner(ctx, policy.SelfService, scope)
		if err != nil {
			return err
		}
		req.OwnerID = owner
	}

	d := g.engine.Evaluate(req)
	if !d.Allowed {
		return ErrForbidden.Wrap(errors.New(d.Reason))
	}
	return nil
}

// CheckRead is Check for reads by id. A self-service caller that is denied
// gets notFound instead, so record existence does not leak.
func (g *Guard) CheckRead(ctx context.Context, p Principal, op Operation, scope Scope, notFound error) error {
	err := g.Check(ctx, p, op, scope)
	if err == nil || !errors.Is(err, ErrForbidden) {
		return err
	}
	if policy, ok := g.engine.Policy(op); ok && policy.SelfService != "" && p.Role == policy.SelfService {
		return notFound
	}
	return err
}

// resolveOwner returns uuid.Nil when the scope does not match the
// self-service role or the record does not exist, which the engine denies.
func (g *Guard) resolveOwner(ctx context.Context, role Role, scope Scope) (uuid.UUID, error) {
	var (
		owner uuid.UUID
		err   error
	)
	switch {
	case role == RolePatient && scope.kind == scopePatient:
		owner, err = g.owners.PatientOwner(ctx, scope.id)
	case role == RoleDoctor && scope.kind == scopeDoctor:
		owner, err = g.owners.DoctorOwner(ctx, scope.id)
	default:
		return uuid.Nil, nil
	}
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("resolve owner: %w", err)
	}
	return owner, nil
}
