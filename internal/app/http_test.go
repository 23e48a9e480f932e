package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"proctor/api/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service, *memStore) {
	t.Helper()
	svc, ms, _, _ := newTestService()
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server, svc, ms
}

func mintToken(t *testing.T, svc *Service, user store.User) string {
	t.Helper()
	session, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return session.Token
}

func doJSON(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	payload := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func TestHealthEndpointNeedsNoAuth(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["ok"] != true {
		t.Fatalf("payload = %v", payload)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/tests", "", `{"name":"x"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestOperatorCannotManage(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := mintToken(t, svc, store.User{ID: "usr_op", Username: "pt2210", Role: "operator"})

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/tests"},
		{http.MethodPost, "/api/operators"},
		{http.MethodPost, "/api/tests/t1/complete"},
		{http.MethodPost, "/api/tests/t1/seating"},
	} {
		resp, payload := doJSON(t, route.method, server.URL+route.path, token, `{}`)
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("%s %s: status = %d", route.method, route.path, resp.StatusCode)
		}
		if payload["code"] != "FORBIDDEN" {
			t.Fatalf("%s %s: payload = %v", route.method, route.path, payload)
		}
	}
}

func TestAuthorizeAndAttendanceOverHTTP(t *testing.T) {
	server, svc, ms := newTestServer(t)
	seedPerson(ms, "p1", "Asha Rao", "PT2210", "asha@example.com")
	seedPerson(ms, "s1", "Meera Nair", "2024A100", "meera@example.com")
	seedTest(ms, "t1", "Placement Test 1")
	profile := mustCreateOperator(t, svc, "p1")
	registerApplicant(t, svc, ms, "t1", "s1")

	adminToken := mintToken(t, svc, store.User{ID: "usr_adm", Username: "admin", Role: "admin"})

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/operators/"+profile.ID+"/tests/t1", adminToken, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("authorize status = %d (%v)", resp.StatusCode, payload)
	}
	if payload["status"] != "created" || payload["credentialsIssued"] != true {
		t.Fatalf("authorize payload = %v", payload)
	}

	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/operators/"+profile.ID+"/tests/t1", adminToken, "")
	if resp.StatusCode != http.StatusConflict || payload["code"] != "ALREADY_AUTHORIZED" {
		t.Fatalf("duplicate authorize: status=%d payload=%v", resp.StatusCode, payload)
	}

	// An operator scoped to t1 can mark attendance on it.
	opToken := mintToken(t, svc, store.User{ID: "usr_op", Username: "pt2210", Role: "operator", AuthorizedTests: []string{"t1"}})
	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/tests/t1/attendance", opToken, `{"rollNumber":"2024A100"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attendance status = %d (%v)", resp.StatusCode, payload)
	}
	if payload["status"] != "marked" {
		t.Fatalf("attendance payload = %v", payload)
	}

	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/tests/t1/attendance", opToken, `{"rollNumber":"2024A100"}`)
	if resp.StatusCode != http.StatusConflict || payload["code"] != "ALREADY_MARKED" {
		t.Fatalf("double mark: status=%d payload=%v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/tests/t1/attendance", opToken, `{"rollNumber":"2024A999"}`)
	if resp.StatusCode != http.StatusNotFound || payload["code"] != "NOT_REGISTERED" {
		t.Fatalf("unknown roll: status=%d payload=%v", resp.StatusCode, payload)
	}

	// An operator scoped elsewhere is refused.
	strayToken := mintToken(t, svc, store.User{ID: "usr_stray", Username: "pt9999", Role: "operator", AuthorizedTests: []string{"t2"}})
	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/tests/t1/attendance", strayToken, `{"rollNumber":"2024A100"}`)
	if resp.StatusCode != http.StatusForbidden || payload["code"] != "FORBIDDEN" {
		t.Fatalf("stray operator: status=%d payload=%v", resp.StatusCode, payload)
	}
}

func TestCompleteTestOverHTTP(t *testing.T) {
	server, svc, ms := newTestServer(t)
	ctx := context.Background()
	seedPerson(ms, "p1", "Asha Rao", "PT2210", "asha@example.com")
	seedTest(ms, "t1", "Placement Test 1")
	profile := mustCreateOperator(t, svc, "p1")
	if _, err := svc.AuthorizeOperator(ctx, profile.ID, "t1"); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	adminToken := mintToken(t, svc, store.User{ID: "usr_adm", Username: "admin", Role: "admin"})
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/tests/t1/complete", adminToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d (%v)", resp.StatusCode, payload)
	}
	if payload["status"] != "completed" || payload["revokedCount"] != float64(1) {
		t.Fatalf("complete payload = %v", payload)
	}

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/tests/t1/stats", adminToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d (%v)", resp.StatusCode, payload)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := mintToken(t, svc, store.User{ID: "usr_adm", Username: "admin", Role: "admin"})
	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/nonsense", token, "")
	if resp.StatusCode != http.StatusNotFound || payload["code"] != "NOT_FOUND" {
		t.Fatalf("status=%d payload=%v", resp.StatusCode, payload)
	}
}
