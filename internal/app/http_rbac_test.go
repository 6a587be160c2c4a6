package app

import (
	"net/http"
	"testing"
)

func TestClienteWriteEndpointsAreForbidden(t *testing.T) {
	server, token := newServerAndToken(t, &fakeStore{}, "cliente")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "create client", method: http.MethodPost, path: "/api/clients", body: `{"name":"Acme"}`},
		{name: "create entity", method: http.MethodPost, path: "/api/entities", body: `{"clientId":"cli-1","name":"Acme SL"}`},
		{name: "create movement", method: http.MethodPost, path: "/api/movements", body: `{"entityId":"ent-1","title":"Ampliación"}`},
		{name: "update document", method: http.MethodPut, path: "/api/documents/doc-1", body: `{"title":"Doc"}`},
		{name: "delete document", method: http.MethodDelete, path: "/api/documents/doc-1", body: `{}`},
		{name: "revert version", method: http.MethodPost, path: "/api/documents/doc-1/versions/1/revert", body: `{}`},
		{name: "workflow submit", method: http.MethodPost, path: "/api/documents/doc-1/workflow/transitions", body: `{"action":"submit"}`},
		{name: "create shared link", method: http.MethodPost, path: "/api/documents/doc-1/links", body: `{}`},
		{name: "admin users", method: http.MethodGet, path: "/api/admin/users", body: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, server, tc.method, tc.path, token, tc.body)
			if rr.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
			}
			if parseBody(t, rr)["code"] != "FORBIDDEN" {
				t.Fatalf("expected code FORBIDDEN, got %s", rr.Body.String())
			}
		})
	}
}

func TestReviewEndpointRoleMatrix(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		shouldDeny bool
	}{
		{name: "cliente denied", role: "cliente", shouldDeny: true},
		{name: "user denied", role: "user", shouldDeny: true},
		{name: "rc_abogados allowed", role: "rc_abogados", shouldDeny: false},
		{name: "admin allowed", role: "admin", shouldDeny: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, token := newServerAndToken(t, &fakeStore{}, tc.role)

			rr := doJSON(t, server, http.MethodPost, "/api/documents/doc-1/review", token, `{}`)
			if tc.shouldDeny {
				if rr.Code != http.StatusForbidden {
					t.Fatalf("expected forbidden for role=%s, got %d body=%s", tc.role, rr.Code, rr.Body.String())
				}
				return
			}
			if rr.Code == http.StatusForbidden {
				t.Fatalf("expected role=%s to pass authz, got forbidden", tc.role)
			}
		})
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	for _, role := range []string{"user", "cliente"} {
		server, token := newServerAndToken(t, &fakeStore{}, role)
		rr := doJSON(t, server, http.MethodGet, "/api/admin/audit", token, "")
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for role=%s, got %d", role, rr.Code)
		}
	}

	server, token := newServerAndToken(t, &fakeStore{}, "admin")
	rr := doJSON(t, server, http.MethodGet, "/api/admin/audit", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestReindexAllowsBackOfficeRole(t *testing.T) {
	tests := []struct {
		role       string
		shouldDeny bool
	}{
		{role: "user", shouldDeny: true},
		{role: "cliente", shouldDeny: true},
		{role: "rc_abogados", shouldDeny: false},
		{role: "admin", shouldDeny: false},
	}

	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			fs := &fakeStore{}
			svc := newTestService(fs)
			svc.search = &fakeSearch{}
			server := NewHTTPServer(svc, "*")
			_, token := newServerAndToken(t, fs, tc.role)

			rr := doJSON(t, server, http.MethodPost, "/api/admin/reindex", token, "")
			if tc.shouldDeny && rr.Code != http.StatusForbidden {
				t.Fatalf("expected 403 for role=%s, got %d", tc.role, rr.Code)
			}
			if !tc.shouldDeny && rr.Code != http.StatusOK {
				t.Fatalf("expected 200 for role=%s, got %d body=%s", tc.role, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestClienteCanReadDocuments(t *testing.T) {
	server, token := newServerAndToken(t, &fakeStore{}, "cliente")

	// Default fake scoping puts every entity under cli-1, but a cliente
	// without grants sees nothing rather than everything.
	rr := doJSON(t, server, http.MethodGet, "/api/documents", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}
