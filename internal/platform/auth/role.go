package auth

// Role is the single role carried by an identity.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleDoctor   Role = "Doctor"
	RoleEmployee Role = "Employee"
	RolePatient  Role = "Patient"
)

// Roles lists every recognized role.
var Roles = []Role{RoleAdmin, RoleDoctor, RoleEmployee, RolePatient}

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleEmployee, RolePatient:
		return true
	}
	return false
}

// ParseRole converts s to a Role. Matching is exact.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

func (r Role) String() string { return string(r) }
