package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/platform/clock"
	"github.com/Virang41/visiting/internal/service"
)

// ---------- Mocks ----------

type mockUsersStore struct {
	nextID int64
	users  map[int64]*domain.User

	// afterFind runs once after the next FindByEmail returns its snapshot,
	// to interleave writes between a service's read and its follow-up write.
	afterFind func()
}

func newMockUsersStore() *mockUsersStore {
	return &mockUsersStore{nextID: 1, users: make(map[int64]*domain.User)}
}

func (m *mockUsersStore) add(email, role string, active bool) *domain.User {
	u := &domain.User{
		ID:       m.nextID,
		Email:    strings.ToLower(email),
		Name:     "Test User",
		Role:     role,
		IsActive: active,
	}
	m.users[u.ID] = u
	m.nextID++
	return u
}

func (m *mockUsersStore) Create(_ context.Context, email, hash, name, phone, department, role string) (*domain.User, error) {
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

func (m *mockUsersStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			if m.afterFind != nil {
				hook := m.afterFind
				m.afterFind = nil
				hook()
			}
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockUsersStore) FindByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUsersStore) UpdateProfile(_ context.Context, id int64, name, phone, department string) (*domain.User, error) {
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

func (m *mockUsersStore) UpdatePassword(_ context.Context, id int64, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUsersStore) TouchLogin(_ context.Context, id int64, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (m *mockUsersStore) SetChallenge(_ context.Context, id int64, codeHash string, expiresAt time.Time, purpose domain.OTPPurpose) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.OTPHash = codeHash
	u.OTPExpiresAt = &expiresAt
	u.OTPPurpose = purpose
	return nil
}

func (m *mockUsersStore) ConsumeChallenge(_ context.Context, id int64, codeHash string, loginAt *time.Time) error {
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

func (m *mockUsersStore) ClearChallenge(_ context.Context, id int64) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.OTPHash = ""
	u.OTPExpiresAt = nil
	u.OTPPurpose = ""
	return nil
}

type mockMailer struct {
	lastTo   string
	lastCode string
	sendErr  error
	sent     int
}

func (m *mockMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	m.lastTo = toEmail
	return "mock-id", m.sendErr
}

func (m *mockMailer) SendOTP(toEmail, toName, code, purpose string) error {
	m.lastTo = toEmail
	m.lastCode = code
	m.sent++
	return m.sendErr
}

func (m *mockMailer) SendInvite(toEmail, toName, hostName, when, location, purpose string) error {
	m.lastTo = toEmail
	return m.sendErr
}

func (m *mockMailer) SendAppointmentStatus(toEmail, toName, status, reason string) error {
	m.lastTo = toEmail
	return m.sendErr
}

type mockBus struct {
	mu        sync.Mutex
	published []string
}

func (m *mockBus) Publish(_ context.Context, subject string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, subject)
	return nil
}

func (m *mockBus) Close() error { return nil }

// ---------- Test Setup ----------

func setupOTP(t *testing.T) (*service.OTPService, *mockUsersStore, *mockMailer, *clock.Fixed) {
	t.Helper()
	store := newMockUsersStore()
	mail := &mockMailer{}
	clk := &clock.Fixed{T: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc := service.NewOTPService(store, mail, &mockBus{}, clk, 10*time.Minute)
	return svc, store, mail, clk
}

// ---------- Tests ----------

func TestOTP_IssueAndVerify_Login(t *testing.T) {
	svc, store, mail, clk := setupOTP(t)
	store.add("alice@example.com", domain.RoleEmployee, true)

	code, u, err := svc.Issue(context.Background(), "Alice@Example.com", domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("Expected 6-digit code, got %q", code)
	}
	if mail.lastTo != "alice@example.com" || mail.lastCode != code {
		t.Fatalf("Code not delivered: to=%s code=%s", mail.lastTo, mail.lastCode)
	}

	clk.Advance(5 * time.Minute)
	verified, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, code)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if verified.ID != u.ID {
		t.Fatalf("Expected user %d, got %d", u.ID, verified.ID)
	}
	if store.users[u.ID].LastLoginAt == nil {
		t.Fatal("Expected login timestamp after login-purpose verify")
	}

	// One challenge, one use.
	if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, code); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for consumed challenge, got %v", err)
	}
}

func TestOTP_Verify_Expired(t *testing.T) {
	svc, store, _, clk := setupOTP(t)
	u := store.add("bob@example.com", domain.RoleVisitor, true)

	code, _, err := svc.Issue(context.Background(), u.Email, domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	clk.Advance(10*time.Minute + time.Millisecond)
	if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, code); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("Expected ErrExpired, got %v", err)
	}
	if store.users[u.ID].OTPHash != "" {
		t.Fatal("Expected expired challenge cleared")
	}

	// The challenge is gone; a retry with the same code hits presence first.
	if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, code); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after lazy clear, got %v", err)
	}
}

func TestOTP_Verify_ExactBoundaryStillValid(t *testing.T) {
	svc, store, _, clk := setupOTP(t)
	u := store.add("carol@example.com", domain.RoleEmployee, true)

	code, _, _ := svc.Issue(context.Background(), u.Email, domain.PurposeLogin)
	clk.Advance(10 * time.Minute) // exactly at expiry, not past it
	if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, code); err != nil {
		t.Fatalf("Code at exact expiry instant should verify, got %v", err)
	}
}

func TestOTP_Verify_WrongPurpose(t *testing.T) {
	svc, store, _, _ := setupOTP(t)
	u := store.add("dave@example.com", domain.RoleEmployee, true)

	code, _, _ := svc.Issue(context.Background(), u.Email, domain.PurposeLogin)
	if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeReset, code); !errors.Is(err, domain.ErrWrongPurpose) {
		t.Fatalf("Expected ErrWrongPurpose, got %v", err)
	}

	// The mismatch must not burn the challenge.
	if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, code); err != nil {
		t.Fatalf("Challenge should survive a wrong-purpose attempt, got %v", err)
	}
}

func TestOTP_Verify_WrongCodeLeavesChallenge(t *testing.T) {
	svc, store, _, _ := setupOTP(t)
	u := store.add("erin@example.com", domain.RoleSecurity, true)

	code, _, _ := svc.Issue(context.Background(), u.Email, domain.PurposeLogin)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, wrong); !errors.Is(err, domain.ErrCodeMismatch) {
		t.Fatalf("Expected ErrCodeMismatch, got %v", err)
	}
	if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, "  "+code+" "); err != nil {
		t.Fatalf("Correct code with whitespace should verify after a miss, got %v", err)
	}
}

func TestOTP_Reissue_SupersedesPrevious(t *testing.T) {
	svc, store, _, _ := setupOTP(t)
	u := store.add("frank@example.com", domain.RoleEmployee, true)

	first, _, _ := svc.Issue(context.Background(), u.Email, domain.PurposeLogin)
	second, _, err := svc.Issue(context.Background(), u.Email, domain.PurposeReset)
	if err != nil {
		t.Fatalf("Reissue failed: %v", err)
	}

	if first != second {
		if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, first); err == nil {
			t.Fatal("Superseded code must not verify")
		}
	}
	if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeReset, second); err != nil {
		t.Fatalf("Latest code should verify: %v", err)
	}
}

func TestOTP_Reissue_DuringVerifyKeepsNewChallenge(t *testing.T) {
	svc, store, _, _ := setupOTP(t)
	u := store.add("grace@example.com", domain.RoleEmployee, true)

	first, _, err := svc.Issue(context.Background(), u.Email, domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// A reissue lands after Verify has read the challenge but before it
	// consumes it. The consume is keyed on the digest that was checked, so
	// the stale code must lose the race without touching the new challenge.
	var second string
	store.afterFind = func() {
		second, _, err = svc.Issue(context.Background(), u.Email, domain.PurposeLogin)
		if err != nil {
			t.Fatalf("Reissue failed: %v", err)
		}
	}
	if first != second {
		if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, first); err == nil {
			t.Fatal("Superseded code must not verify")
		}
	}

	if _, err := svc.Verify(context.Background(), u.Email, domain.PurposeLogin, second); err != nil {
		t.Fatalf("Challenge issued mid-verify should still be usable: %v", err)
	}
}

func TestOTP_Issue_Denied(t *testing.T) {
	svc, store, _, _ := setupOTP(t)
	store.add("inactive@example.com", domain.RoleEmployee, false)

	tests := []struct {
		name  string
		email string
		want  error
	}{
		{"unknown holder", "nobody@example.com", domain.ErrNotFound},
		{"inactive holder", "inactive@example.com", domain.ErrInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.Issue(context.Background(), tt.email, domain.PurposeLogin); !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestOTP_CodesAreSixDigits(t *testing.T) {
	svc, store, _, _ := setupOTP(t)
	u := store.add("gina@example.com", domain.RoleEmployee, true)

	for i := 0; i < 20; i++ {
		code, _, err := svc.Issue(context.Background(), u.Email, domain.PurposeLogin)
		if err != nil {
			t.Fatalf("Issue %d failed: %v", i, err)
		}
		if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
			t.Fatalf("Issue %d: bad code %q", i, code)
		}
	}
}
