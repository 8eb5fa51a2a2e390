package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeAccess = "access"
	PurposeReset  = "reset"
)

type Claims struct {
	Sub     int64  `json:"sub"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// NewAccessToken signs a session token for a logged-in account holder.
func NewAccessToken(sub int64, email, role, secret string, ttl time.Duration) (string, error) {
	return sign(sub, email, role, PurposeAccess, secret, ttl)
}

// NewResetToken signs the single-intent capability handed out after a
// verified reset OTP. It is stateless: nothing server-side tracks redemption.
func NewResetToken(sub int64, secret string, ttl time.Duration) (string, error) {
	return sign(sub, "", "", PurposeReset, secret, ttl)
}

func sign(sub int64, email, role, purpose, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:     sub,
		Email:   email,
		Role:    role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  []string{"visiting-api"},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func Parse(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
