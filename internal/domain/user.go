package domain

import (
	"strings"
	"time"
)

const (
	RoleAdmin    = "admin"
	RoleSecurity = "security"
	RoleEmployee = "employee"
	RoleVisitor  = "visitor"
)

func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleSecurity, RoleEmployee, RoleVisitor:
		return true
	default:
		return false
	}
}

// OTPPurpose binds a challenge to the flow that requested it. A challenge
// issued for one purpose never verifies under the other.
type OTPPurpose string

const (
	PurposeLogin OTPPurpose = "login"
	PurposeReset OTPPurpose = "reset"
)

func ParseOTPPurpose(s string) (OTPPurpose, bool) {
	switch OTPPurpose(s) {
	case PurposeLogin, PurposeReset:
		return OTPPurpose(s), true
	default:
		return "", false
	}
}

// User is an account holder: staff, security, admin or a visitor with an
// account. At most one outstanding OTP challenge lives on the row; a reissue
// overwrites it in place.
type User struct {
	ID           int64
	Role         string
	Email        string
	PasswordHash string
	Name         string
	Phone        string
	Department   string
	IsActive     bool
	LastLoginAt  *time.Time

	// Embedded OTP challenge, nil/zero when none is outstanding.
	OTPHash      string
	OTPExpiresAt *time.Time
	OTPPurpose   OTPPurpose

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasChallenge reports whether an OTP challenge is outstanding.
func (u *User) HasChallenge() bool {
	return u.OTPHash != "" && u.OTPExpiresAt != nil
}

type RegisterRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
}

func (r *RegisterRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
	if r.Role == "" {
		r.Role = RoleVisitor
	}
}

type UserInfo struct {
	ID         int64  `json:"id"`
	Role       string `json:"role"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
	IsActive   bool   `json:"is_active"`
}

// ToUserInfo strips credential and challenge fields for API responses.
func (u *User) ToUserInfo() UserInfo {
	return UserInfo{
		ID:         u.ID,
		Role:       u.Role,
		Email:      u.Email,
		Name:       u.Name,
		Phone:      u.Phone,
		Department: u.Department,
		IsActive:   u.IsActive,
	}
}
