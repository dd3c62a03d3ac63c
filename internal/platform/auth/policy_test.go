package auth

import (
	"sort"
	"testing"

	"github.com/google/uuid"
)

func TestAuthorize_PatientMismatchAlwaysDenied(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicies())
	caller := uuid.New()
	for op, p := range DefaultPolicies() {
		if p.SelfService != RolePatient {
			continue
		}
		for i := 0; i < 5; i++ {
			owner := uuid.New()
			d := engine.Evaluate(Request{CallerRole: RolePatient, CallerID: caller, OwnerID: owner, Operation: op})
			if d.Allowed {
				t.Errorf("%s: patient allowed on resource owned by %s", op, owner)
			}
		}
	}
}

func TestAuthorize_PatientOwnerAllowed(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicies())
	caller := uuid.New()
	for _, op := range []Operation{OpPatientRead, OpPatientUpdate, OpAppointmentCreate, OpAppointmentRead, OpAppointmentByPatient, OpRecordRead, OpRecordHistory, OpRecordDocument} {
		d := engine.Evaluate(Request{CallerRole: RolePatient, CallerID: caller, OwnerID: caller, Operation: op})
		if !d.Allowed {
			t.Errorf("%s: expected owner to be allowed, got %q", op, d.Reason)
		}
	}
}

func TestAuthorize_AdminEmployeeBlanketOnPatientScope(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicies())
	patientScoped := []Operation{
		OpPatientRead, OpPatientUpdate, OpPatientList, OpPatientSearch,
		OpAppointmentByPatient, OpAppointmentRead, OpAppointmentCreate,
		OpRecordHistory, OpRecordRead, OpRecordDocument,
	}
	for _, role := range []Role{RoleAdmin, RoleEmployee} {
		for _, op := range patientScoped {
			for _, owner := range []uuid.UUID{uuid.Nil, uuid.New()} {
				d := engine.Evaluate(Request{CallerRole: role, CallerID: uuid.New(), OwnerID: owner, Operation: op})
				if !d.Allowed {
					t.Errorf("%s on %s (owner %s): expected allow, got %q", role, op, owner, d.Reason)
				}
			}
		}
	}
}

func TestAuthorize_Table(t *testing.T) {
	me := uuid.New()
	other := uuid.New()
	tests := []struct {
		name  string
		role  Role
		owner uuid.UUID
		op    Operation
		want  bool
	}{
		{"doctor lists patients", RoleDoctor, uuid.Nil, OpPatientList, true},
		{"patient cannot list patients", RolePatient, uuid.Nil, OpPatientList, false},
		{"doctor creates record", RoleDoctor, uuid.Nil, OpRecordCreate, true},
		{"employee cannot create record", RoleEmployee, uuid.Nil, OpRecordCreate, false},
		{"patient cannot create record", RolePatient, me, OpRecordCreate, false},
		{"doctor cannot update status", RoleDoctor, uuid.Nil, OpAppointmentUpdateStatus, false},
		{"employee cancels", RoleEmployee, uuid.Nil, OpAppointmentCancel, true},
		{"patient cannot cancel own", RolePatient, me, OpAppointmentCancel, false},
		{"doctor cannot create appointment", RoleDoctor, uuid.Nil, OpAppointmentCreate, false},
		{"doctor reads own profile", RoleDoctor, me, OpDoctorRead, true},
		{"doctor cannot read other doctor", RoleDoctor, other, OpDoctorRead, false},
		{"doctor lists own appointments", RoleDoctor, me, OpAppointmentByDoctor, true},
		{"doctor cannot list other doctor's appointments", RoleDoctor, other, OpAppointmentByDoctor, false},
		{"patient cannot read doctor", RolePatient, me, OpDoctorRead, false},
		{"self-service with unresolved owner", RolePatient, uuid.Nil, OpPatientRead, false},
		{"unknown role", Role("root"), me, OpPatientList, false},
		{"unknown operation", RoleAdmin, uuid.Nil, Operation("patient.purge"), false},
	}
	engine := NewPolicyEngine(DefaultPolicies())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Evaluate(Request{CallerRole: tt.role, CallerID: me, OwnerID: tt.owner, Operation: tt.op})
			if d.Allowed != tt.want {
				t.Errorf("expected allowed=%v, got %v (%s)", tt.want, d.Allowed, d.Reason)
			}
			if d.Reason == "" {
				t.Error("expected a reason")
			}
		})
	}
}

func TestAuthorize_NilCallerNeverOwns(t *testing.T) {
	d := Authorize(RolePatient, uuid.Nil, uuid.Nil, Policy{SelfService: RolePatient})
	if d.Allowed {
		t.Error("nil caller and nil owner must not match")
	}
}

func TestDefaultPolicies_NoImplicitAdmin(t *testing.T) {
	ops := make([]string, 0)
	for op, p := range DefaultPolicies() {
		if !p.AllowsStaff(RoleAdmin) {
			ops = append(ops, string(op))
		}
	}
	sort.Strings(ops)
	if len(ops) != 0 {
		t.Errorf("expected Admin in every staff tier, missing from %v", ops)
	}
}

func TestNewPolicyEngine_CopiesTable(t *testing.T) {
	table := map[Operation]Policy{OpPatientList: {StaffRoles: []Role{RoleAdmin}}}
	engine := NewPolicyEngine(table)
	delete(table, OpPatientList)
	if _, ok := engine.Policy(OpPatientList); !ok {
		t.Error("engine must not observe later changes to the input map")
	}
}
