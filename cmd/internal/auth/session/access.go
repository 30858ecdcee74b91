package session

import "strings"

// Capability is a protected area of the application.
type Capability string

const (
	CapEmployeeArea Capability = "employee-area"
	CapEmployerArea Capability = "employer-area"
	CapAdminArea    Capability = "admin-area"
)

// ParseCapability maps a route guard name to a Capability.
func ParseCapability(s string) (Capability, bool) {
	switch Capability(strings.ToLower(strings.TrimSpace(s))) {
	case CapEmployeeArea:
		return CapEmployeeArea, true
	case CapEmployerArea:
		return CapEmployerArea, true
	case CapAdminArea:
		return CapAdminArea, true
	default:
		return "", false
	}
}

// CanAccess decides whether the session may enter the capability's area.
// It is pure and safe to call on every render.
//
// The dual role satisfies both the employee and employer areas. Admin is
// exclusive: only RoleAdmin enters the admin area, and RoleAdmin enters nothing else.
func CanAccess(s Snapshot, c Capability) bool {
	if !s.Phase.Active() || s.Profile == nil {
		return false
	}

	role := s.Profile.Role
	switch c {
	case CapEmployeeArea:
		return role == RoleEmployee || role == RoleBoth
	case CapEmployerArea:
		return role == RoleEmployer || role == RoleBoth
	case CapAdminArea:
		return role == RoleAdmin
	default:
		return false
	}
}
