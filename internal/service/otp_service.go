package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/platform/clock"
	"github.com/Virang41/visiting/internal/platform/mailer"
	"github.com/Virang41/visiting/pkg/events"
	"github.com/Virang41/visiting/pkg/logger"
)

// OTPService owns the one-time-code challenge lifecycle. A holder has at most
// one live challenge; issuing again overwrites the previous one in a single
// write, which is also how "resend" works.
type OTPService struct {
	users  UsersStore
	mailer mailer.Service
	bus    events.Publisher
	clock  clock.Clock
	ttl    time.Duration
}

// UsersStore is the slice of the users repo the auth flows need.
type UsersStore interface {
	Create(ctx context.Context, email, hash, name, phone, department, role string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	UpdateProfile(ctx context.Context, id int64, name, phone, department string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	TouchLogin(ctx context.Context, id int64, at time.Time) error
	SetChallenge(ctx context.Context, id int64, codeHash string, expiresAt time.Time, purpose domain.OTPPurpose) error
	ConsumeChallenge(ctx context.Context, id int64, codeHash string, loginAt *time.Time) error
	ClearChallenge(ctx context.Context, id int64) error
}

func NewOTPService(users UsersStore, m mailer.Service, bus events.Publisher, clk clock.Clock, ttl time.Duration) *OTPService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OTPService{users: users, mailer: m, bus: bus, clock: clk, ttl: ttl}
}

// Issue generates a fresh 6-digit code for the holder and hands delivery to
// the mail channel. The plaintext code is returned to the caller; only its
// bcrypt digest is stored. Delivery failure does not undo the challenge.
func (s *OTPService) Issue(ctx context.Context, email string, purpose domain.OTPPurpose) (string, *domain.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, err
	}
	if !u.IsActive {
		return "", nil, domain.ErrInactive
	}

	code, err := generateCode()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate code: %w", err)
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash code: %w", err)
	}

	now := s.clock.Now()
	if err := s.users.SetChallenge(ctx, u.ID, string(digest), now.Add(s.ttl), purpose); err != nil {
		return "", nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	if err := s.mailer.SendOTP(u.Email, u.Name, code, string(purpose)); err != nil {
		logger.WarnContext(ctx, "OTP delivery failed, code remains valid", "error", err, "user_id", u.ID)
	}
	if s.bus != nil {
		ev := events.OTPIssuedEvent{UserID: u.ID, Email: u.Email, Purpose: string(purpose), IssuedAt: now}
		if err := s.bus.Publish(ctx, events.OTPIssued, ev); err != nil {
			logger.WarnContext(ctx, "Failed to publish otp.issued", "error", err)
		}
	}

	return code, u, nil
}

// Verify checks a submitted code against the holder's live challenge. Checks
// run in a fixed order: presence, expiry, purpose, then the code itself. A
// wrong code leaves the challenge usable for a retry inside the window; an
// expired one is dropped on sight. Success consumes the challenge in the
// same write that records the login.
func (s *OTPService) Verify(ctx context.Context, email string, purpose domain.OTPPurpose, code string) (*domain.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if !u.HasChallenge() {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now()
	if now.After(*u.OTPExpiresAt) {
		if err := s.users.ClearChallenge(ctx, u.ID); err != nil {
			logger.WarnContext(ctx, "Failed to clear expired challenge", "error", err, "user_id", u.ID)
		}
		return nil, domain.ErrExpired
	}
	if u.OTPPurpose != purpose {
		return nil, domain.ErrWrongPurpose
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.OTPHash), []byte(strings.TrimSpace(code))); err != nil {
		return nil, domain.ErrCodeMismatch
	}

	var loginAt *time.Time
	if purpose == domain.PurposeLogin {
		loginAt = &now
	}
	if err := s.users.ConsumeChallenge(ctx, u.ID, u.OTPHash, loginAt); err != nil {
		// challenge was consumed or superseded between read and consume
		return nil, domain.ErrNotFound
	}
	return u, nil
}

// generateCode draws 6 digits from the system CSPRNG.
func generateCode() (string, error) {
	const digits = "0123456789"
	buf := make([]byte, 6)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		buf[i] = digits[n.Int64()]
	}
	return string(buf), nil
}
