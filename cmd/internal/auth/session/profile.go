package session

import (
	"encoding/json"
	"strings"
)

// Role is the closed set of marketplace roles.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleEmployer Role = "employer"
	RoleAdmin    Role = "admin"
	// RoleBoth is the dual employee/employer role.
	RoleBoth Role = "both"
)

// ParseRole normalizes s into a Role. "dual" and "employee_employer" are
// accepted as synonyms of RoleBoth.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "employee":
		return RoleEmployee, true
	case "employer":
		return RoleEmployer, true
	case "admin":
		return RoleAdmin, true
	case "both", "dual", "employee_employer":
		return RoleBoth, true
	default:
		return "", false
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleEmployer, RoleAdmin, RoleBoth:
		return true
	default:
		return false
	}
}

// Profile is the cached identity profile.
type Profile struct {
	SubjectID   string `json:"subject_id"`
	Role        Role   `json:"role"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Verified    bool   `json:"verified"`
}

// ProfilePatch is a partial profile. Nil fields are left unchanged.
type ProfilePatch struct {
	SubjectID   *string `json:"subject_id,omitempty"`
	Role        *Role   `json:"role,omitempty"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	Verified    *bool   `json:"verified,omitempty"`
}

// IsEmpty reports whether the patch sets no field.
func (p ProfilePatch) IsEmpty() bool {
	return p.SubjectID == nil && p.Role == nil && p.FirstName == nil &&
		p.LastName == nil && p.DisplayName == nil && p.Verified == nil
}

// Merge shallow-merges patch into p. A patch role outside the closed set is ignored.
func (p Profile) Merge(patch ProfilePatch) Profile {
	if patch.SubjectID != nil {
		p.SubjectID = *patch.SubjectID
	}
	if patch.Role != nil {
		if r, ok := ParseRole(string(*patch.Role)); ok {
			p.Role = r
		}
	}
	if patch.FirstName != nil {
		p.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		p.LastName = *patch.LastName
	}
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.Verified != nil {
		p.Verified = *patch.Verified
	}
	return p
}

func encodeProfile(p Profile) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeProfile parses a persisted profile and rejects anything that would
// produce a half-populated session.
func decodeProfile(raw string) (Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Profile{}, ErrCorruptRecord
	}
	r, ok := ParseRole(string(p.Role))
	if !ok {
		return Profile{}, ErrCorruptRecord
	}
	p.Role = r
	return p, nil
}
