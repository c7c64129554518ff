package enums

import "fmt"

// Role is the actor role carried in access tokens.
type Role string

const (
	RoleShopper   Role = "shopper"
	RoleGateStaff Role = "gate_staff"
	RoleMallAdmin Role = "mall_admin"
)

var validRoles = []Role{
	RoleShopper,
	RoleGateStaff,
	RoleMallAdmin,
}

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanRedeemExit reports whether the role may close orders at the exit gate.
func (r Role) CanRedeemExit() bool {
	return r == RoleGateStaff || r == RoleMallAdmin
}

func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
