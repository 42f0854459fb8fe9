package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Taiga-ESSI/taiga-auth/internal/domain"
	"github.com/Taiga-ESSI/taiga-auth/internal/repository"
	"github.com/Taiga-ESSI/taiga-auth/internal/service"
)

type mockUserRepo struct {
	usersByID map[string]domain.User
	emails    map[string]string
	usernames map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID: make(map[string]domain.User),
		emails:    make(map[string]string),
		usernames: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	if _, taken := m.emails[strings.ToLower(user.Email)]; taken {
		return repository.ErrDuplicateUser
	}
	if _, taken := m.usernames[user.Username]; taken {
		return repository.ErrDuplicateUser
	}
	m.usersByID[user.ID] = user
	m.emails[strings.ToLower(user.Email)] = user.ID
	m.usernames[user.Username] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.usersByID[id], nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	id, ok := m.usernames[username]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.usersByID[id], nil
}

type stubVerifier struct {
	claims service.GoogleClaims
	err    error
}

func (s *stubVerifier) Verify(_ context.Context, _, _ string) (service.GoogleClaims, error) {
	if s.err != nil {
		return service.GoogleClaims{}, s.err
	}
	return s.claims, nil
}

type stubBridge struct {
	outcome service.InvitationOutcome
}

func (s *stubBridge) Apply(_ context.Context, _ string, _ domain.User) (service.InvitationOutcome, error) {
	return s.outcome, nil
}

func newTestRouter(verifier service.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	repo := newMockUserRepo()
	jwtSvc := service.NewJWTService("test-secret", time.Minute, time.Hour)
	policy := service.NewDomainPolicy([]string{"upc.edu"})
	provisioner := service.NewProvisioningService(logger, repo, policy, true)
	authSvc := service.NewAuthService(logger, repo, verifier, provisioner, &stubBridge{outcome: service.InvitationApplied}, jwtSvc, service.AuthConfig{
		GoogleEnabled:  true,
		GoogleConfigOK: true,
	})
	handler := NewAuthHandler(logger, authSvc, jwtSvc)
	return NewRouter(logger, handler, jwtSvc)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginEndpointGoogleSuccess(t *testing.T) {
	verifier := &stubVerifier{claims: service.GoogleClaims{
		Subject:       "1234567890",
		Email:         "a@upc.edu",
		EmailVerified: true,
		HostedDomain:  "upc.edu",
		Name:          "Test User",
	}}
	router := newTestRouter(verifier)

	rec := doJSON(t, router, http.MethodPost, "/auth", gin.H{
		"type":       "google",
		"credential": "tok",
		"client_id":  "X",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		User struct {
			Email        string `json:"email"`
			AuthProvider string `json:"auth_provider"`
		} `json:"user"`
		AuthToken string `json:"auth_token"`
		Refresh   string `json:"refresh"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.User.Email != "a@upc.edu" || resp.User.AuthProvider != "google" {
		t.Fatalf("unexpected user in payload: %+v", resp.User)
	}
	if resp.AuthToken == "" || resp.Refresh == "" {
		t.Fatalf("expected auth_token and refresh in payload")
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("expected credential fields to stay out of the response")
	}
}

func TestLoginEndpointFailureShape(t *testing.T) {
	verifier := &stubVerifier{err: service.NewLoginError(service.KindAudienceMismatch, nil)}
	router := newTestRouter(verifier)

	rec := doJSON(t, router, http.MethodPost, "/auth", gin.H{
		"type":       "google",
		"credential": "tok",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["error"] != "Invalid Google credential." {
		t.Fatalf("expected translated message, got %q", resp["error"])
	}
	// El kind interno no se filtra en la respuesta.
	if strings.Contains(rec.Body.String(), "audience_mismatch") {
		t.Fatalf("expected error kind to stay internal")
	}
}

func TestLoginEndpointUniformErrorBodyAcrossKinds(t *testing.T) {
	// Misma forma externa para kinds distintos: solo cambia el texto.
	for _, kind := range []service.LoginErrorKind{
		service.KindExpired,
		service.KindDomainNotAllowed,
		service.KindNoSuchAccount,
	} {
		verifier := &stubVerifier{err: service.NewLoginError(kind, nil)}
		router := newTestRouter(verifier)

		rec := doJSON(t, router, http.MethodPost, "/auth", gin.H{"type": "google", "credential": "tok"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("kind %s: expected 400, got %d", kind, rec.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("kind %s: unmarshal: %v", kind, err)
		}
		if len(resp) != 1 || resp["error"] == "" {
			t.Fatalf("kind %s: expected single error field, got %v", kind, resp)
		}
	}
}

func TestRegisterEndpointWithdrawnWithGoogleActive(t *testing.T) {
	router := newTestRouter(&stubVerifier{})

	rec := doJSON(t, router, http.MethodPost, "/users", gin.H{
		"username": "a",
		"email":    "a@upc.edu",
		"password": "secret",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for withdrawn registration, got %d", rec.Code)
	}
}

func TestMeEndpointWithIssuedToken(t *testing.T) {
	verifier := &stubVerifier{claims: service.GoogleClaims{
		Email:         "a@upc.edu",
		EmailVerified: true,
	}}
	router := newTestRouter(verifier)

	rec := doJSON(t, router, http.MethodPost, "/auth", gin.H{"type": "google", "credential": "tok"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d", rec.Code)
	}
	var login struct {
		AuthToken string `json:"auth_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AuthToken)
	meRec := httptest.NewRecorder()
	router.ServeHTTP(meRec, req)

	if meRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /users/me, got %d", meRec.Code)
	}
	var me map[string]any
	if err := json.Unmarshal(meRec.Body.Bytes(), &me); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if me["email"] != "a@upc.edu" {
		t.Fatalf("unexpected me payload: %v", me)
	}
}

func TestRefreshAndLogoutEndpoints(t *testing.T) {
	verifier := &stubVerifier{claims: service.GoogleClaims{Email: "a@upc.edu", EmailVerified: true}}
	router := newTestRouter(verifier)

	rec := doJSON(t, router, http.MethodPost, "/auth", gin.H{"type": "google", "credential": "tok"})
	var login struct {
		Refresh string `json:"refresh"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	refreshRec := doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh": login.Refresh})
	if refreshRec.Code != http.StatusOK {
		t.Fatalf("expected refresh to succeed, got %d", refreshRec.Code)
	}
	var renewed struct {
		Refresh string `json:"refresh"`
	}
	if err := json.Unmarshal(refreshRec.Body.Bytes(), &renewed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	logoutRec := doJSON(t, router, http.MethodPost, "/auth/logout", gin.H{"refresh": renewed.Refresh})
	if logoutRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from logout, got %d", logoutRec.Code)
	}

	reuseRec := doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh": renewed.Refresh})
	if reuseRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked refresh to be rejected, got %d", reuseRec.Code)
	}
}
