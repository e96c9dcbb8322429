package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/nerdwiki/nerdwiki-api/internal/api/handler"
	"github.com/nerdwiki/nerdwiki-api/internal/core/service"
	"github.com/nerdwiki/nerdwiki-api/internal/infrastructure/db/memory"
	"github.com/nerdwiki/nerdwiki-api/internal/infrastructure/http/handlers"
)

type testServer struct {
	e     *echo.Echo
	roles *service.RoleService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	issuer, err := service.NewTokenIssuer(service.TokenConfig{
		Key:      "0123456789abcdef0123456789abcdef",
		Issuer:   "nerdwiki",
		Audience: "nerdwiki-clients",
	})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	users := memory.NewCredentialStore()
	tokens := memory.NewRefreshTokenStore()
	log := zerolog.Nop()

	auth := service.NewAuthService(users, tokens, issuer, service.NewBcryptHasher(bcrypt.MinCost), log)
	roles := service.NewRoleService(users, log)
	reg := prometheus.NewRegistry()

	e := NewRouter(Dependencies{
		Auth:       auth,
		Roles:      roles,
		Verifier:   issuer,
		Cookie:     handler.CookieOptions{Secure: true},
		Checks:     map[string]handlers.Pinger{"credentials": users, "refresh_tokens": tokens},
		Log:        log,
		Registerer: reg,
		Gatherer:   reg,
	})
	return &testServer{e: e, roles: roles}
}

type call struct {
	method  string
	path    string
	body    string
	bearer  string
	refresh string
}

func (s *testServer) do(c call) *httptest.ResponseRecorder {
	var req *http.Request
	if c.body != "" {
		req = httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(c.method, c.path, nil)
	}
	if c.bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.bearer)
	}
	if c.refresh != "" {
		req.AddCookie(&http.Cookie{Name: handler.RefreshCookieName, Value: c.refresh})
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signUp(t *testing.T, username, email, password string) {
	t.Helper()
	body := `{"username":"` + username + `","email":"` + email + `","password":"` + password + `"}`
	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: body}); rec.Code != http.StatusCreated {
		t.Fatalf("sign-up %s: expected 201, got %d: %s", username, rec.Code, rec.Body.String())
	}
}

// signIn returns the access token and the refresh cookie value.
func (s *testServer) signIn(t *testing.T, username, password string) (string, string) {
	t.Helper()
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signin", body: `{"username":"` + username + `","password":"` + password + `"}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("sign-in %s: expected 200, got %d: %s", username, rec.Code, rec.Body.String())
	}
	return accessToken(t, rec), cookieValue(t, rec)
}

func accessToken(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var token string
	if err := json.Unmarshal(rec.Body.Bytes(), &token); err != nil || token == "" {
		t.Fatalf("expected the access token as a JSON string, got %s", rec.Body.String())
	}
	return token
}

func cookieValue(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == handler.RefreshCookieName {
			return ck.Value
		}
	}
	t.Fatalf("no %s cookie in response", handler.RefreshCookieName)
	return ""
}

func TestRouter_RefreshRotation(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "alice", "a@x.com", "P@ssw0rd!")

	_, c1 := s.signIn(t, "alice", "P@ssw0rd!")

	rec := s.do(call{method: http.MethodPost, path: "/api/auth/refresh", refresh: c1})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	c2 := cookieValue(t, rec)
	if c2 == c1 {
		t.Fatalf("expected rotated refresh token")
	}
	accessToken(t, rec)

	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/refresh", refresh: c1}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh: expected 401, got %d", rec.Code)
	}
	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/refresh", refresh: c2}); rec.Code != http.StatusOK {
		t.Fatalf("rotated refresh: expected 200, got %d", rec.Code)
	}
}

func TestRouter_SignInFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "alice", "a@x.com", "P@ssw0rd!")

	unknown := s.do(call{method: http.MethodPost, path: "/api/auth/signin", body: `{"username":"mallory","password":"P@ssw0rd!"}`})
	wrong := s.do(call{method: http.MethodPost, path: "/api/auth/signin", body: `{"username":"alice","password":"nope"}`})

	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.Code, wrong.Code)
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", unknown.Body.String(), wrong.Body.String())
	}
	if len(unknown.Result().Cookies()) != 0 || len(wrong.Result().Cookies()) != 0 {
		t.Fatalf("failed sign-in must not set cookies")
	}
}

func TestRouter_SignUpValidation(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "alice", "a@x.com", "P@ssw0rd!")

	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"username":"alice","email":"a@x.com","password":"short"}`})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp handler.ValidationErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Error != "validation failed" {
		t.Fatalf("unexpected error %q", resp.Error)
	}
	joined := strings.Join(resp.Details, "\n")
	for _, want := range []string{"Username 'alice' is already taken.", "Email 'a@x.com' is already taken.", "at least 6 characters"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in details %v", want, resp.Details)
		}
	}
}

func TestRouter_SignUpRejectsPasswordBeyondBcryptLimit(t *testing.T) {
	s := newTestServer(t)

	password := "P@ssw0rd!" + strings.Repeat("a", 71)
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"username":"alice","email":"a@x.com","password":"` + password + `"}`})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp handler.ValidationErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Details) != 1 || resp.Details[0] != "Passwords must be at most 72 bytes." {
		t.Fatalf("unexpected details %v", resp.Details)
	}

	// The longest accepted password signs up and signs in.
	password = "P@ssw0rd!" + strings.Repeat("a", 63)
	s.signUp(t, "alice", "a@x.com", password)
	s.signIn(t, "alice", password)
}

func TestRouter_SignOutRevokesRefresh(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "alice", "a@x.com", "P@ssw0rd!")
	access, refresh := s.signIn(t, "alice", "P@ssw0rd!")

	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/signout"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous sign-out: expected 401, got %d", rec.Code)
	}

	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signout", bearer: access})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("sign-out: expected 204, got %d", rec.Code)
	}
	// Idempotent.
	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/signout", bearer: access}); rec.Code != http.StatusNoContent {
		t.Fatalf("second sign-out: expected 204, got %d", rec.Code)
	}

	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/refresh", refresh: refresh}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after sign-out: expected 401, got %d", rec.Code)
	}
	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/refresh"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh without cookie: expected 401, got %d", rec.Code)
	}
}

func TestRouter_Status(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "alice", "a@x.com", "P@ssw0rd!")
	access, _ := s.signIn(t, "alice", "P@ssw0rd!")

	tests := []struct {
		name   string
		bearer string
		want   string
	}{
		{"anonymous", "", "false"},
		{"garbage token", "not-a-jwt", "false"},
		{"valid token", access, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(call{method: http.MethodGet, path: "/api/auth/", bearer: tt.bearer})
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRouter_RoleManagementRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "root", "root@x.com", "R00t!pass")
	s.signUp(t, "bob", "bob@x.com", "B0b!pass")

	if err := s.roles.EnsureAdmins(context.Background(), []string{"root"}); err != nil {
		t.Fatalf("ensure admins: %v", err)
	}
	adminToken, _ := s.signIn(t, "root", "R00t!pass")
	bobToken, _ := s.signIn(t, "bob", "B0b!pass")

	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/role", body: `{"roleName":"Editor"}`}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rec.Code)
	}
	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/role", body: `{"roleName":"Editor"}`, bearer: bobToken}); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", rec.Code)
	}

	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/role", body: `{"roleName":"Editor"}`, bearer: adminToken}); rec.Code != http.StatusCreated {
		t.Fatalf("create role: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/role", body: `{"roleName":"editor"}`, bearer: adminToken}); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate role: expected 409, got %d", rec.Code)
	}

	assign := `{"username":"bob","roleName":"Editor"}`
	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/assign-role", body: assign, bearer: adminToken}); rec.Code != http.StatusNoContent {
		t.Fatalf("assign role: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/assign-role", body: assign, bearer: adminToken}); rec.Code != http.StatusConflict {
		t.Fatalf("repeat assign: expected 409, got %d", rec.Code)
	}
	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/assign-role", body: `{"username":"ghost","roleName":"Editor"}`, bearer: adminToken}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", rec.Code)
	}

	// New memberships show up in the next issued token.
	bobToken, _ = s.signIn(t, "bob", "B0b!pass")
	if rec := s.do(call{method: http.MethodPost, path: "/api/auth/role", body: `{"roleName":"Reader"}`, bearer: bobToken}); rec.Code != http.StatusForbidden {
		t.Fatalf("editor is not admin: expected 403, got %d", rec.Code)
	}
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(call{method: http.MethodGet, path: "/health"}); rec.Code != http.StatusOK {
		t.Fatalf("liveness: expected 200, got %d", rec.Code)
	}
	if rec := s.do(call{method: http.MethodGet, path: "/health/ready"}); rec.Code != http.StatusOK {
		t.Fatalf("readiness: expected 200, got %d", rec.Code)
	}

	s.signUp(t, "alice", "a@x.com", "P@ssw0rd!")
	rec := s.do(call{method: http.MethodGet, path: "/metrics"})
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	for _, name := range []string{"nerdwiki_http_requests_total", "nerdwiki_auth_requests_total", "nerdwiki_auth_request_duration_seconds"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Fatalf("expected %s on the injected registry", name)
		}
	}

	if rec := s.do(call{method: http.MethodGet, path: "/swagger/doc.json"}); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/auth/signin") {
		t.Fatalf("expected swagger document, got %d", rec.Code)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(call{method: http.MethodGet, path: "/nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
}
