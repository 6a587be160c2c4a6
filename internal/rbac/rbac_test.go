package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "cliente read", role: RoleCliente, action: ActionRead, allow: true},
		{name: "cliente upload", role: RoleCliente, action: ActionUpload, allow: false},
		{name: "cliente review", role: RoleCliente, action: ActionReview, allow: false},
		{name: "user upload", role: RoleUser, action: ActionUpload, allow: true},
		{name: "user review", role: RoleUser, action: ActionReview, allow: false},
		{name: "abogados review", role: RoleAbogados, action: ActionReview, allow: true},
		{name: "abogados admin", role: RoleAbogados, action: ActionAdmin, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("intern"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("rc_abogados"); got != RoleAbogados {
		t.Fatalf("Normalize(rc_abogados) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleUser {
		t.Fatalf("Normalize(superuser) = %q, want user", got)
	}
}
