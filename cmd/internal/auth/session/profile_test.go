package session

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := map[string]Role{
		"employee":          RoleEmployee,
		"EMPLOYER":          RoleEmployer,
		" admin ":           RoleAdmin,
		"both":              RoleBoth,
		"dual":              RoleBoth,
		"employee_employer": RoleBoth,
	}
	for in, want := range tests {
		got, ok := ParseRole(in)
		if !ok || got != want {
			t.Fatalf("ParseRole(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseRole("moderator"); ok {
		t.Fatalf("unknown role should not parse")
	}
}

func TestProfileMerge(t *testing.T) {
	t.Parallel()

	base := Profile{SubjectID: "u1", Role: RoleEmployee, FirstName: "Ada", Verified: false}
	verified := true

	got := base.Merge(ProfilePatch{LastName: strPtr("Lovelace"), Verified: &verified, Role: rolePtr("dual")})
	want := Profile{SubjectID: "u1", Role: RoleBoth, FirstName: "Ada", LastName: "Lovelace", Verified: true}
	if got != want {
		t.Fatalf("Merge = %+v, want %+v", got, want)
	}
	if base.LastName != "" {
		t.Fatalf("Merge must not mutate the receiver")
	}
}

func TestDecodeProfile(t *testing.T) {
	t.Parallel()

	p, err := decodeProfile(`{"role":"dual","first_name":"Grace"}`)
	if err != nil {
		t.Fatalf("decodeProfile: %v", err)
	}
	if p.Role != RoleBoth || p.FirstName != "Grace" {
		t.Fatalf("unexpected profile %+v", p)
	}

	for _, raw := range []string{``, `null`, `{"role":""}`, `{"role":"ceo"}`, `[1,2]`} {
		if _, err := decodeProfile(raw); !errors.Is(err, ErrCorruptRecord) {
			t.Fatalf("decodeProfile(%q): expected ErrCorruptRecord, got %v", raw, err)
		}
	}
}
