package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/http/handlers"
	"github.com/Virang41/visiting/internal/http/middleware"
	"github.com/Virang41/visiting/internal/platform/auth"
	"github.com/Virang41/visiting/internal/platform/clock"
	"github.com/Virang41/visiting/internal/service"
)

// ---------- Mocks ----------

type memUsers struct {
	nextID int64
	users  map[int64]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{nextID: 1, users: make(map[int64]*domain.User)}
}

func (m *memUsers) Create(_ context.Context, email, hash, name, phone, department, role string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return nil, domain.ErrEmailTaken
		}
	}
	u := &domain.User{
		ID: m.nextID, Email: email, PasswordHash: hash, Name: name,
		Phone: phone, Department: department, Role: role, IsActive: true,
	}
	m.users[u.ID] = u
	m.nextID++
	return u, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id int64, name, phone, department string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if name != "" {
		u.Name = name
	}
	if phone != "" {
		u.Phone = phone
	}
	if department != "" {
		u.Department = department
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) TouchLogin(_ context.Context, id int64, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (m *memUsers) SetChallenge(_ context.Context, id int64, codeHash string, expiresAt time.Time, purpose domain.OTPPurpose) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.OTPHash = codeHash
	u.OTPExpiresAt = &expiresAt
	u.OTPPurpose = purpose
	return nil
}

func (m *memUsers) ConsumeChallenge(_ context.Context, id int64, codeHash string, loginAt *time.Time) error {
	u, ok := m.users[id]
	if !ok || u.OTPHash == "" || u.OTPHash != codeHash {
		return domain.ErrNotFound
	}
	u.OTPHash = ""
	u.OTPExpiresAt = nil
	u.OTPPurpose = ""
	if loginAt != nil {
		u.LastLoginAt = loginAt
	}
	return nil
}

func (m *memUsers) ClearChallenge(_ context.Context, id int64) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.OTPHash = ""
	u.OTPExpiresAt = nil
	u.OTPPurpose = ""
	return nil
}

type memMailer struct {
	lastTo   string
	lastCode string
}

func (m *memMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	m.lastTo = toEmail
	return "mem-id", nil
}

func (m *memMailer) SendOTP(toEmail, toName, code, purpose string) error {
	m.lastTo = toEmail
	m.lastCode = code
	return nil
}

func (m *memMailer) SendInvite(toEmail, toName, hostName, when, location, purpose string) error {
	return nil
}

func (m *memMailer) SendAppointmentStatus(toEmail, toName, status, reason string) error {
	return nil
}

// ---------- Test Setup ----------

const testSecret = "handler-test-secret"

func passthrough(next http.Handler) http.Handler { return next }

func setupServer() (*httptest.Server, *memUsers, *memMailer) {
	users := newMemUsers()
	mail := &memMailer{}
	clk := &clock.Fixed{T: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}

	authSvc := service.NewAuthService(users, nil, testSecret, time.Hour, 15*time.Minute)
	otpSvc := service.NewOTPService(users, mail, nil, clk, 10*time.Minute)
	h := handlers.NewAuthHandler(authSvc, otpSvc, users)

	r := chi.NewRouter()
	r.Mount("/auth", h.Routes(passthrough))
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireJWT(testSecret))
		r.Mount("/me", h.MeRoutes())
	})

	return httptest.NewServer(r), users, mail
}

func postJSON(t *testing.T, url string, data any, expectedStatus int) *http.Response {
	t.Helper()
	body, _ := json.Marshal(data)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	if resp.StatusCode != expectedStatus {
		t.Fatalf("POST %s: expected status %d, got %d", url, expectedStatus, resp.StatusCode)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

// ---------- Tests ----------

func TestAuth_RegisterLoginMe(t *testing.T) {
	server, _, _ := setupServer()
	defer server.Close()

	reg := postJSON(t, server.URL+"/auth/register", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "hunter22", "role": "employee",
	}, http.StatusCreated)
	regBody := decode[map[string]any](t, reg)

	token, _ := regBody["token"].(string)
	if token == "" {
		t.Fatal("Expected token in register response")
	}
	claims, err := auth.Parse(token, testSecret)
	if err != nil || claims.Role != domain.RoleEmployee {
		t.Fatalf("Bad token: %v %+v", err, claims)
	}

	// /me requires the bearer token.
	req, _ := http.NewRequest("GET", server.URL+"/me", nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 with token, got %d", resp.StatusCode)
	}
	me := decode[domain.UserInfo](t, resp)
	if me.Email != "alice@example.com" {
		t.Fatalf("Unexpected /me body: %+v", me)
	}

	postJSON(t, server.URL+"/auth/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	}, http.StatusUnauthorized).Body.Close()
}

func TestAuth_OTPLoginFlow(t *testing.T) {
	server, _, mail := setupServer()
	defer server.Close()

	postJSON(t, server.URL+"/auth/register", map[string]string{
		"name": "Bob", "email": "bob@example.com", "password": "hunter22", "role": "security",
	}, http.StatusCreated).Body.Close()

	postJSON(t, server.URL+"/auth/send-otp", map[string]string{
		"email": "bob@example.com", "purpose": "login",
	}, http.StatusAccepted).Body.Close()

	if mail.lastTo != "bob@example.com" || mail.lastCode == "" {
		t.Fatalf("Code not delivered: %+v", mail)
	}

	verify := postJSON(t, server.URL+"/auth/verify-otp", map[string]string{
		"email": "bob@example.com", "purpose": "login", "code": mail.lastCode,
	}, http.StatusOK)
	body := decode[map[string]any](t, verify)
	if token, _ := body["token"].(string); token == "" {
		t.Fatal("Expected session token after login OTP")
	}

	// The challenge is single use.
	postJSON(t, server.URL+"/auth/verify-otp", map[string]string{
		"email": "bob@example.com", "purpose": "login", "code": mail.lastCode,
	}, http.StatusNotFound).Body.Close()
}

func TestAuth_OTPResetFlow(t *testing.T) {
	server, _, mail := setupServer()
	defer server.Close()

	postJSON(t, server.URL+"/auth/register", map[string]string{
		"name": "Carol", "email": "carol@example.com", "password": "oldpass1", "role": "employee",
	}, http.StatusCreated).Body.Close()

	postJSON(t, server.URL+"/auth/send-otp", map[string]string{
		"email": "carol@example.com", "purpose": "reset",
	}, http.StatusAccepted).Body.Close()

	// A reset code cannot be redeemed as a login.
	postJSON(t, server.URL+"/auth/verify-otp", map[string]string{
		"email": "carol@example.com", "purpose": "login", "code": mail.lastCode,
	}, http.StatusUnauthorized).Body.Close()

	verify := postJSON(t, server.URL+"/auth/verify-otp", map[string]string{
		"email": "carol@example.com", "purpose": "reset", "code": mail.lastCode,
	}, http.StatusOK)
	body := decode[map[string]string](t, verify)
	resetToken := body["reset_token"]
	if resetToken == "" {
		t.Fatal("Expected reset_token")
	}
	if claims, err := auth.Parse(resetToken, testSecret); err != nil || claims.Purpose != auth.PurposeReset {
		t.Fatalf("Reset token should carry reset purpose: %v", err)
	}

	postJSON(t, server.URL+"/auth/reset-password", map[string]string{
		"reset_token": resetToken, "new_password": "newpass1",
	}, http.StatusOK).Body.Close()

	postJSON(t, server.URL+"/auth/login", map[string]string{
		"email": "carol@example.com", "password": "oldpass1",
	}, http.StatusUnauthorized).Body.Close()
	postJSON(t, server.URL+"/auth/login", map[string]string{
		"email": "carol@example.com", "password": "newpass1",
	}, http.StatusOK).Body.Close()
}

func TestAuth_SendOTP_BadInput(t *testing.T) {
	server, _, _ := setupServer()
	defer server.Close()

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing email", map[string]string{"purpose": "login"}},
		{"bad purpose", map[string]string{"email": "a@b.co", "purpose": "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			postJSON(t, server.URL+"/auth/send-otp", tt.body, http.StatusBadRequest).Body.Close()
		})
	}

	// Unknown holders get a 404, matching the lookup semantics.
	resp := postJSON(t, server.URL+"/auth/send-otp", map[string]string{
		"email": "ghost@example.com", "purpose": "login",
	}, http.StatusNotFound)
	resp.Body.Close()
}
