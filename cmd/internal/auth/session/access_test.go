package session

import "testing"

func TestCanAccess(t *testing.T) {
	t.Parallel()

	withRole := func(phase Phase, r Role) Snapshot {
		return Snapshot{Phase: phase, Token: "t", Profile: &Profile{Role: r}}
	}

	tests := []struct {
		name string
		snap Snapshot
		cap  Capability
		want bool
	}{
		{"employee in employee area", withRole(PhaseAuthenticated, RoleEmployee), CapEmployeeArea, true},
		{"employee in employer area", withRole(PhaseAuthenticated, RoleEmployee), CapEmployerArea, false},
		{"employer in employer area", withRole(PhaseAuthenticated, RoleEmployer), CapEmployerArea, true},
		{"employer in admin area", withRole(PhaseAuthenticated, RoleEmployer), CapAdminArea, false},
		{"both in employee area", withRole(PhaseAuthenticated, RoleBoth), CapEmployeeArea, true},
		{"both in employer area", withRole(PhaseAuthenticated, RoleBoth), CapEmployerArea, true},
		{"both in admin area", withRole(PhaseAuthenticated, RoleBoth), CapAdminArea, false},
		{"admin in admin area", withRole(PhaseAuthenticated, RoleAdmin), CapAdminArea, true},
		{"admin in employee area", withRole(PhaseAuthenticated, RoleAdmin), CapEmployeeArea, false},
		{"revalidating keeps access", withRole(PhaseRevalidating, RoleEmployee), CapEmployeeArea, true},
		{"hydrating has no access", withRole(PhaseHydrating, RoleEmployee), CapEmployeeArea, false},
		{"invalidated has no access", withRole(PhaseInvalidated, RoleAdmin), CapAdminArea, false},
		{"unauthenticated", Snapshot{}, CapEmployeeArea, false},
		{"unknown capability", withRole(PhaseAuthenticated, RoleAdmin), Capability("billing-area"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccess(tt.snap, tt.cap); got != tt.want {
				t.Fatalf("CanAccess(%s, %s) = %v, want %v", tt.snap.Phase, tt.cap, got, tt.want)
			}
		})
	}
}

func TestParseCapability(t *testing.T) {
	t.Parallel()

	if c, ok := ParseCapability(" Employer-Area "); !ok || c != CapEmployerArea {
		t.Fatalf("ParseCapability: got %q %v", c, ok)
	}
	if _, ok := ParseCapability("reports-area"); ok {
		t.Fatalf("unknown capability should not parse")
	}
}
