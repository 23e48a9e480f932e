package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "operator read", role: RoleOperator, action: ActionRead, allow: true},
		{name: "operator scan", role: RoleOperator, action: ActionScan, allow: true},
		{name: "operator manage", role: RoleOperator, action: ActionManage, allow: false},
		{name: "admin manage", role: RoleAdmin, action: ActionManage, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: false},
		{name: "owner admin", role: RoleOwner, action: ActionAdmin, allow: true},
		{name: "unknown read", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestScopedToTests(t *testing.T) {
	if !ScopedToTests(RoleOperator) {
		t.Fatal("operator should be scoped to its authorized tests")
	}
	if ScopedToTests(RoleAdmin) || ScopedToTests(RoleOwner) {
		t.Fatal("admin and owner should not be test-scoped")
	}
}
