package utils

import (
	"strings"
	"unicode"
)

// NormalizeEmail lowercases and trims an address for use as a lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips formatting, keeping digits and a leading +.
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	if cleaned == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range cleaned {
		if i == 0 && r == '+' {
			b.WriteRune(r)
		} else if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidEmail is a sanity check, not RFC validation; the mail provider is
// the real arbiter.
func IsValidEmail(email string) bool {
	parts := strings.Split(NormalizeEmail(email), "@")
	if len(parts) != 2 {
		return false
	}
	local, domain := parts[0], parts[1]
	return len(local) > 0 && len(domain) > 2 && strings.Contains(domain, ".")
}
