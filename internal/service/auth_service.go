package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/platform/auth"
	"github.com/Virang41/visiting/pkg/events"
	"github.com/Virang41/visiting/pkg/logger"
)

// AuthService covers password auth, profile changes and the reset-token
// exchange that follows a verified reset OTP.
type AuthService struct {
	users          UsersStore
	bus            events.Publisher
	jwtSecret      string
	accessTokenTTL time.Duration
	resetTokenTTL  time.Duration
}

func NewAuthService(users UsersStore, bus events.Publisher, jwtSecret string, accessTTL, resetTTL time.Duration) *AuthService {
	if accessTTL <= 0 {
		accessTTL = 7 * 24 * time.Hour
	}
	if resetTTL <= 0 {
		resetTTL = 15 * time.Minute
	}
	return &AuthService{
		users:          users,
		bus:            bus,
		jwtSecret:      jwtSecret,
		accessTokenTTL: accessTTL,
		resetTokenTTL:  resetTTL,
	}
}

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, string, error) {
	req.Normalize()
	if req.Email == "" || req.Name == "" || len(req.Password) < 6 {
		return nil, "", fmt.Errorf("%w: name, email and a password of at least 6 characters are required", domain.ErrInvalidState)
	}
	if !domain.IsValidRole(req.Role) {
		return nil, "", fmt.Errorf("%w: unknown role %q", domain.ErrInvalidState, req.Role)
	}

	hash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	u, err := s.users.Create(ctx, req.Email, hash, req.Name, req.Phone, req.Department, req.Role)
	if err != nil {
		return nil, "", err
	}

	token, err := s.AccessToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", domain.ErrBadCredentials
		}
		return nil, "", err
	}

	ok, err := argon2id.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, "", domain.ErrBadCredentials
	}
	if !u.IsActive {
		return nil, "", domain.ErrInactive
	}

	if err := s.users.TouchLogin(ctx, u.ID, time.Now()); err != nil {
		logger.WarnContext(ctx, "Failed to record last login", "error", err, "user_id", u.ID)
	}

	token, err := s.AccessToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// AccessToken signs the session token handed out after any successful login.
func (s *AuthService) AccessToken(u *domain.User) (string, error) {
	return auth.NewAccessToken(u.ID, u.Email, u.Role, s.jwtSecret, s.accessTokenTTL)
}

// IssueResetToken mints the single-intent capability. Callers must only
// invoke it right after a successful reset-purpose OTP verification.
func (s *AuthService) IssueResetToken(holderID int64) (string, error) {
	return auth.NewResetToken(holderID, s.jwtSecret, s.resetTokenTTL)
}

// ResetPassword redeems a reset token. The token is stateless; single use is
// approximated by requiring the holder to still exist and be active.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", domain.ErrInvalidState)
	}

	claims, err := auth.Parse(token, s.jwtSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.ErrExpired
		}
		return domain.ErrInvalidToken
	}
	if claims.Purpose != auth.PurposeReset {
		return domain.ErrWrongIntent
	}

	u, err := s.users.FindByID(ctx, claims.Sub)
	if err != nil {
		return err
	}
	if !u.IsActive {
		return domain.ErrInactive
	}

	hash, err := argon2id.CreateHash(newPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return err
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, events.PasswordReset, map[string]any{"user_id": u.ID}); err != nil {
			logger.WarnContext(ctx, "Failed to publish password reset event", "error", err)
		}
	}
	return nil
}

// UpdateProfile patches name/phone/department; a password change additionally
// requires the current password.
func (s *AuthService) UpdateProfile(ctx context.Context, id int64, name, phone, department, currentPassword, newPassword string) (*domain.User, error) {
	if newPassword != "" {
		u, err := s.users.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		ok, err := argon2id.ComparePasswordAndHash(currentPassword, u.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("failed to verify password: %w", err)
		}
		if !ok {
			return nil, domain.ErrBadCredentials
		}
		if len(newPassword) < 6 {
			return nil, fmt.Errorf("%w: password must be at least 6 characters", domain.ErrInvalidState)
		}
		hash, err := argon2id.CreateHash(newPassword, argon2id.DefaultParams)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
			return nil, err
		}
	}
	return s.users.UpdateProfile(ctx, id, name, phone, department)
}
