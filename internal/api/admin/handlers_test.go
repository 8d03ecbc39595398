package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/dotctl/beta-portal/internal/auth"
	"github.com/dotctl/beta-portal/internal/config"
	"github.com/dotctl/beta-portal/internal/db/models"
	"github.com/dotctl/beta-portal/internal/db/repositories"
	"github.com/dotctl/beta-portal/internal/middleware"
)

const (
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "correct-horse-battery"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type fakeAdminStore struct {
	mu      sync.Mutex
	byID    map[string]*models.AdminUser
	byEmail map[string]*models.AdminUser

	resetCalls int
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{
		byID:    make(map[string]*models.AdminUser),
		byEmail: make(map[string]*models.AdminUser),
	}
}

func (s *fakeAdminStore) add(u *models.AdminUser) {
	s.byID[u.ID] = u
	s.byEmail[strings.ToLower(u.Email)] = u
}

func (s *fakeAdminStore) GetAdminUserByID(_ context.Context, id string) (*models.AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id], nil
}

func (s *fakeAdminStore) GetAdminUserByEmail(_ context.Context, email string) (*models.AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byEmail[strings.ToLower(email)], nil
}

func (s *fakeAdminStore) RecordFailedLogin(_ context.Context, id string, maxAttempts int, lockoutUntil time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID[id]
	u.LoginAttempts++
	if u.LoginAttempts >= maxAttempts {
		until := lockoutUntil
		u.LockoutUntil = &until
	}
	return u.LoginAttempts, nil
}

func (s *fakeAdminStore) ResetLoginAttempts(_ context.Context, id string, lastLogin time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID[id]
	u.LoginAttempts = 0
	u.LockoutUntil = nil
	u.LastLogin = &lastLogin
	s.resetCalls++
	return nil
}

func (s *fakeAdminStore) SetMagicLink(_ context.Context, id, tokenHash string, expiresAt time.Time, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID[id]
	u.MagicLinkHash = &tokenHash
	u.MagicLinkExpiresAt = &expiresAt
	u.MagicLinkPurpose = &purpose
	return nil
}

func (s *fakeAdminStore) ConsumeMagicLink(_ context.Context, tokenHash string, now time.Time) (*models.AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.MagicLinkHash != nil && *u.MagicLinkHash == tokenHash &&
			u.MagicLinkExpiresAt != nil && now.Before(*u.MagicLinkExpiresAt) && u.IsActive {
			u.MagicLinkHash = nil
			u.MagicLinkExpiresAt = nil
			u.MagicLinkPurpose = nil
			return u, nil
		}
	}
	return nil, nil
}

func (s *fakeAdminStore) ConsumeBackupCode(_ context.Context, id, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID[id]
	for i, c := range u.BackupCodes {
		if c == code {
			u.BackupCodes = append(u.BackupCodes[:i], u.BackupCodes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type fakeProgramStore struct {
	users []*models.BetaUser
	stats repositories.BetaStats
}

func (s *fakeProgramStore) ListBetaUsers(_ context.Context, limit, offset int) ([]*models.BetaUser, int, error) {
	if offset >= len(s.users) {
		return nil, len(s.users), nil
	}
	end := offset + limit
	if end > len(s.users) {
		end = len(s.users)
	}
	return s.users[offset:end], len(s.users), nil
}

func (s *fakeProgramStore) GetStats(_ context.Context) (*repositories.BetaStats, error) {
	stats := s.stats
	return &stats, nil
}

type captureMailer struct {
	mu     sync.Mutex
	links  []string
	alerts []string
}

func (m *captureMailer) SendMagicLink(_ context.Context, _ *models.AdminUser, token string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, token)
	return nil
}

func (m *captureMailer) SendSecurityAlert(_ context.Context, _ *models.AdminUser, message, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, message)
	return nil
}

type fixture struct {
	store   *fakeAdminStore
	program *fakeProgramStore
	mailer  *captureMailer
	tokens  *auth.TokenService
	router  *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokens, err := auth.NewTokenService("admin-handler-test-secret-0123456789", time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	store := newFakeAdminStore()
	program := &fakeProgramStore{}
	mailer := &captureMailer{}

	cfg := config.AuthConfig{
		TOTPSkew:         1,
		MaxLoginAttempts: 3,
		LockoutDuration:  15 * time.Minute,
		MagicLinkTTL:     15 * time.Minute,
	}
	h := NewHandlers(store, program, tokens, mailer, cfg, slog.Default())

	r := gin.New()
	r.POST("/api/admin/login", h.Login)
	r.POST("/api/admin/verify-2fa", h.Verify2FA)
	r.POST("/api/admin/magic-link", h.MagicLink)
	r.GET("/api/admin/magic-login", h.MagicLogin)
	r.POST("/api/admin/refresh", h.Refresh)

	authed := r.Group("", middleware.AuthMiddleware(tokens))
	authed.GET("/api/admin/verify", h.Verify)
	authed.GET("/api/admin/users", h.ListUsers)
	authed.GET("/api/admin/stats", h.Stats)

	return &fixture{store: store, program: program, mailer: mailer, tokens: tokens, router: r}
}

func (f *fixture) seedAdmin(t *testing.T, role string, twoFactor bool) *models.AdminUser {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	u := &models.AdminUser{
		ID:           "admin-1",
		Username:     "admin",
		Email:        testAdminEmail,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	if twoFactor {
		secret, _, err := auth.GenerateTOTPSecret("beta-portal-test", testAdminEmail)
		if err != nil {
			t.Fatal(err)
		}
		u.TwoFactorEnabled = true
		u.TwoFactorSecret = &secret
		u.BackupCodes = []string{"AAAA1111", "BBBB2222"}
	}
	f.store.add(u)
	return u
}

func (f *fixture) do(t *testing.T, method, path, body string, header http.Header) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("response is not JSON: %v\nbody: %s", err, w.Body.String())
		}
	}
	return w, parsed
}

func loginBody(email, password string) string {
	return fmt.Sprintf(`{"email": %q, "password": %q}`, email, password)
}

func TestLoginIssuesTokens(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t, "admin", false)

	w, body := f.do(t, http.MethodPost, "/api/admin/login", loginBody(testAdminEmail, testAdminPassword), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	access, _ := body["access_token"].(string)
	if access == "" {
		t.Fatal("access_token missing")
	}
	claims := f.tokens.VerifyAccessToken(access)
	if claims == nil {
		t.Fatal("issued access token does not verify")
	}
	if claims.Role != "admin" {
		t.Errorf("token role = %q, want admin", claims.Role)
	}
	if body["refresh_token"] == "" || body["refresh_token"] == nil {
		t.Error("refresh_token missing")
	}
	if f.store.resetCalls != 1 {
		t.Errorf("login attempts reset %d times, want 1", f.store.resetCalls)
	}
}

func TestLoginUniformRejections(t *testing.T) {
	f := newFixture(t)
	admin := f.seedAdmin(t, "admin", false)

	inactive := *admin
	inactive.ID = "admin-2"
	inactive.Email = "inactive@example.com"
	inactive.IsActive = false
	f.store.add(&inactive)

	tests := []struct {
		name string
		body string
	}{
		{"unknown account", loginBody("nobody@example.com", testAdminPassword)},
		{"wrong password", loginBody(testAdminEmail, "wrong")},
		{"inactive account", loginBody("inactive@example.com", testAdminPassword)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, http.MethodPost, "/api/admin/login", tt.body, nil)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if body["error"] != "Invalid credentials" {
				t.Errorf("error = %v, want the uniform message", body["error"])
			}
		})
	}
}

func TestLoginLockout(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t, "admin", false)

	// Three failures reach the configured threshold.
	for i := 0; i < 3; i++ {
		w, _ := f.do(t, http.MethodPost, "/api/admin/login", loginBody(testAdminEmail, "wrong"), nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("failure %d status = %d, want 401", i+1, w.Code)
		}
	}
	if len(f.mailer.alerts) != 1 {
		t.Errorf("security alerts sent = %d, want 1", len(f.mailer.alerts))
	}

	// The right password no longer works while locked.
	w, _ := f.do(t, http.MethodPost, "/api/admin/login", loginBody(testAdminEmail, testAdminPassword), nil)
	if w.Code != http.StatusLocked {
		t.Fatalf("locked status = %d, want 423", w.Code)
	}
}

func TestLoginWithTwoFactorPending(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t, "admin", true)

	w, body := f.do(t, http.MethodPost, "/api/admin/login", loginBody(testAdminEmail, testAdminPassword), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if body["two_factor_required"] != true {
		t.Errorf("two_factor_required = %v, want true", body["two_factor_required"])
	}
	if _, ok := body["access_token"]; ok {
		t.Error("access token issued before the second factor")
	}
}

func TestVerify2FAWithTOTP(t *testing.T) {
	f := newFixture(t)
	admin := f.seedAdmin(t, "admin", true)

	code, err := totp.GenerateCode(*admin.TwoFactorSecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	w, body := f.do(t, http.MethodPost, "/api/admin/verify-2fa",
		fmt.Sprintf(`{"email": %q, "password": %q, "code": %q}`, testAdminEmail, testAdminPassword, code), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if body["access_token"] == nil {
		t.Error("access_token missing after 2fa")
	}
}

func TestVerify2FAWithBackupCode(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t, "admin", true)

	payload := fmt.Sprintf(`{"email": %q, "password": %q, "code": "aaaa1111"}`, testAdminEmail, testAdminPassword)
	w, body := f.do(t, http.MethodPost, "/api/admin/verify-2fa", payload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if body["access_token"] == nil {
		t.Error("access_token missing after backup code")
	}

	// The code is single-use.
	w, _ = f.do(t, http.MethodPost, "/api/admin/verify-2fa", payload, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reuse status = %d, want 401", w.Code)
	}
}

func TestVerify2FAWrongCodeCountsTowardLockout(t *testing.T) {
	f := newFixture(t)
	admin := f.seedAdmin(t, "admin", true)

	w, _ := f.do(t, http.MethodPost, "/api/admin/verify-2fa",
		fmt.Sprintf(`{"email": %q, "password": %q, "code": "000000"}`, testAdminEmail, testAdminPassword), nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if admin.LoginAttempts != 1 {
		t.Errorf("login attempts = %d, want 1", admin.LoginAttempts)
	}
}

func TestMagicLinkIsUniform(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t, "admin", false)

	wKnown, bodyKnown := f.do(t, http.MethodPost, "/api/admin/magic-link",
		fmt.Sprintf(`{"email": %q}`, testAdminEmail), nil)
	wUnknown, bodyUnknown := f.do(t, http.MethodPost, "/api/admin/magic-link",
		`{"email": "nobody@example.com"}`, nil)

	if wKnown.Code != http.StatusOK || wUnknown.Code != http.StatusOK {
		t.Fatalf("statuses = %d/%d, want 200/200", wKnown.Code, wUnknown.Code)
	}
	if bodyKnown["message"] != bodyUnknown["message"] {
		t.Error("magic-link responses differ between known and unknown accounts")
	}
	if len(f.mailer.links) != 1 {
		t.Fatalf("links sent = %d, want 1", len(f.mailer.links))
	}
}

func TestMagicLoginConsumesToken(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t, "admin", false)

	f.do(t, http.MethodPost, "/api/admin/magic-link", fmt.Sprintf(`{"email": %q}`, testAdminEmail), nil)
	token := f.mailer.links[0]

	w, body := f.do(t, http.MethodGet, "/api/admin/magic-login?token="+token, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if body["access_token"] == nil {
		t.Error("access_token missing after magic login")
	}

	// Second presentation fails like an unknown token.
	w, _ = f.do(t, http.MethodGet, "/api/admin/magic-login?token="+token, "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reuse status = %d, want 401", w.Code)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	f := newFixture(t)
	admin := f.seedAdmin(t, "admin", false)

	_, body := f.do(t, http.MethodPost, "/api/admin/login", loginBody(testAdminEmail, testAdminPassword), nil)
	refresh, _ := body["refresh_token"].(string)
	if refresh == "" {
		t.Fatal("no refresh token from login")
	}

	w, body := f.do(t, http.MethodPost, "/api/admin/refresh",
		fmt.Sprintf(`{"refresh_token": %q}`, refresh), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if body["access_token"] == nil {
		t.Error("access_token missing after refresh")
	}

	// Deactivation takes effect at the next refresh.
	admin.IsActive = false
	w, _ = f.do(t, http.MethodPost, "/api/admin/refresh",
		fmt.Sprintf(`{"refresh_token": %q}`, refresh), nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("deactivated refresh status = %d, want 401", w.Code)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t, "admin", false)

	_, body := f.do(t, http.MethodPost, "/api/admin/login", loginBody(testAdminEmail, testAdminPassword), nil)
	access, _ := body["access_token"].(string)

	w, _ := f.do(t, http.MethodPost, "/api/admin/refresh",
		fmt.Sprintf(`{"refresh_token": %q}`, access), nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func (f *fixture) bearer(t *testing.T) http.Header {
	t.Helper()
	_, body := f.do(t, http.MethodPost, "/api/admin/login", loginBody(testAdminEmail, testAdminPassword), nil)
	access, _ := body["access_token"].(string)
	if access == "" {
		t.Fatal("login did not return an access token")
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+access)
	return h
}

func TestVerifyEchoesIdentity(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t, "super_admin", false)

	w, body := f.do(t, http.MethodGet, "/api/admin/verify", "", f.bearer(t))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if body["email"] != testAdminEmail {
		t.Errorf("email = %v, want %s", body["email"], testAdminEmail)
	}
	if body["role"] != "super_admin" {
		t.Errorf("role = %v, want super_admin", body["role"])
	}
}

func TestListUsersPagination(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t, "admin", false)
	for i := 0; i < 3; i++ {
		f.program.users = append(f.program.users, &models.BetaUser{
			ID:             fmt.Sprintf("user-%d", i),
			Email:          fmt.Sprintf("user%d@example.com", i),
			SignupPosition: i + 1,
		})
	}

	w, body := f.do(t, http.MethodGet, "/api/admin/users?limit=2&offset=1", "", f.bearer(t))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if body["total"] != float64(3) {
		t.Errorf("total = %v, want 3", body["total"])
	}
	users, _ := body["users"].([]interface{})
	if len(users) != 2 {
		t.Errorf("page size = %d, want 2", len(users))
	}
}

func TestListUsersRequiresAuth(t *testing.T) {
	f := newFixture(t)
	w, _ := f.do(t, http.MethodGet, "/api/admin/users", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t, "admin", false)
	f.program.stats = repositories.BetaStats{
		TotalSignups:      42,
		ReferredSignups:   17,
		TotalRewardMonths: 61,
		LinkedDevices:     9,
	}

	w, body := f.do(t, http.MethodGet, "/api/admin/stats", "", f.bearer(t))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if body["total_signups"] != float64(42) || body["linked_devices"] != float64(9) {
		t.Errorf("unexpected stats payload: %v", body)
	}
}
