package auth

import (
	"github.com/google/uuid"
)

// Operation names a protected action.
type Operation string

const (
	OpPatientList   Operation = "patient.list"
	OpPatientSearch Operation = "patient.search"
	OpPatientRead   Operation = "patient.read"
	OpPatientCreate Operation = "patient.create"
	OpPatientUpdate Operation = "patient.update"
	OpPatientDelete Operation = "patient.delete"

	OpDoctorRead Operation = "doctor.read"

	OpAppointmentList         Operation = "appointment.list"
	OpAppointmentByStatus     Operation = "appointment.by_status"
	OpAppointmentByPatient    Operation = "appointment.by_patient"
	OpAppointmentByDoctor     Operation = "appointment.by_doctor"
	OpAppointmentRead         Operation = "appointment.read"
	OpAppointmentCreate       Operation = "appointment.create"
	OpAppointmentUpdateStatus Operation = "appointment.update_status"
	OpAppointmentCancel       Operation = "appointment.cancel"

	OpRecordList     Operation = "record.list"
	OpRecordRead     Operation = "record.read"
	OpRecordHistory  Operation = "record.history"
	OpRecordDocument Operation = "record.document"
	OpRecordCreate   Operation = "record.create"
)

// Policy is the rule set for one operation. StaffRoles pass unconditionally.
// SelfService, when set, is the one role that passes only for resources it owns.
type Policy struct {
	StaffRoles  []Role
	SelfService Role
}

// AllowsStaff reports whether role is in the staff tier.
func (p Policy) AllowsStaff(role Role) bool {
	for _, r := range p.StaffRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Request describes one access attempt. OwnerID is uuid.Nil when the
// resource owner is unknown or not applicable.
type Request struct {
	CallerRole Role
	CallerID   uuid.UUID
	OwnerID    uuid.UUID
	Operation  Operation
}

var (
	staffAll      = []Role{RoleAdmin, RoleEmployee, RoleDoctor}
	staffAdminEmp = []Role{RoleAdmin, RoleEmployee}
)

// DefaultPolicies returns the access rules for every records operation.
func DefaultPolicies() map[Operation]Policy {
	return map[Operation]Policy{
		OpPatientList:   {StaffRoles: staffAll},
		OpPatientSearch: {StaffRoles: staffAll},
		OpPatientRead:   {StaffRoles: staffAll, SelfService: RolePatient},
		OpPatientCreate: {StaffRoles: staffAdminEmp},
		OpPatientUpdate: {StaffRoles: staffAdminEmp, SelfService: RolePatient},
		OpPatientDelete: {StaffRoles: staffAdminEmp},

		// Doctors are staff over patients, not over each other.
		OpDoctorRead: {StaffRoles: staffAdminEmp, SelfService: RoleDoctor},

		OpAppointmentList:         {StaffRoles: staffAll},
		OpAppointmentByStatus:     {StaffRoles: staffAll},
		OpAppointmentByPatient:    {StaffRoles: staffAll, SelfService: RolePatient},
		OpAppointmentByDoctor:     {StaffRoles: staffAdminEmp, SelfService: RoleDoctor},
		OpAppointmentRead:         {StaffRoles: staffAll, SelfService: RolePatient},
		OpAppointmentCreate:       {StaffRoles: staffAdminEmp, SelfService: RolePatient},
		OpAppointmentUpdateStatus: {StaffRoles: staffAdminEmp},
		OpAppointmentCancel:       {StaffRoles: staffAdminEmp},

		OpRecordList:     {StaffRoles: staffAll},
		OpRecordRead:     {StaffRoles: staffAll, SelfService: RolePatient},
		OpRecordHistory:  {StaffRoles: staffAll, SelfService: RolePatient},
		OpRecordDocument: {StaffRoles: staffAll, SelfService: RolePatient},
		OpRecordCreate:   {StaffRoles: []Role{RoleAdmin, RoleDoctor}},
	}
}

// Authorize applies one policy: staff tier first, then self-service
// ownership, otherwise deny. It performs no I/O.
func Authorize(callerRole Role, callerID, ownerID uuid.UUID, p Policy) Decision {
	if !callerRole.Valid() {
		return Decision{Allowed: false, Reason: "unknown role"}
	}
	if p.AllowsStaff(callerRole) {
		return Decision{Allowed: true, Reason: "staff role " + string(callerRole)}
	}
	if p.SelfService == "" || callerRole != p.SelfService {
		return Decision{Allowed: false, Reason: "role " + string(callerRole) + " not permitted"}
	}
	if callerID == uuid.Nil || ownerID == uuid.Nil {
		return Decision{Allowed: false, Reason: "owner unresolved"}
	}
	if ownerID != callerID {
		return Decision{Allowed: false, Reason: "caller does not own resource"}
	}
	return Decision{Allowed: true, Reason: "resource owner"}
}

// PolicyEngine evaluates requests against a fixed policy table.
type PolicyEngine struct {
	policies map[Operation]Policy
}

// NewPolicyEngine creates an engine over policies. The map is copied.
func NewPolicyEngine(policies map[Operation]Policy) *PolicyEngine {
	cp := make(map[Operation]Policy, len(policies))
	for op, p := range policies {
		cp[op] = p
	}
	return &PolicyEngine{policies: cp}
}

// Policy returns the rules registered for op.
func (e *PolicyEngine) Policy(op Operation) (Policy, bool) {
	p, ok := e.policies[op]
	return p, ok
}

// Evaluate checks req. Operations without a policy are denied.
func (e *PolicyEngine) Evaluate(req Request) Decision {
	p, ok := e.policies[req.Operation]
	if !ok {
		return Decision{Allowed: false, Reason: "no policy for " + string(req.Operation)}
	}
	return Authorize(req.CallerRole, req.CallerID, req.OwnerID, p)
}
