package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Virang41/visiting/internal/http/response"
)

// RateLimitConfig bounds how often the keyed requests may pass.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) []string
}

// RateLimiter counts requests per hashed key in Postgres, so the limit holds
// across instances. On database errors it fails open.
type RateLimiter struct {
	pool   *pgxpool.Pool
	config RateLimitConfig
}

func NewRateLimiter(pool *pgxpool.Pool, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{pool: pool, config: config}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, key := range rl.config.KeyFunc(r) {
				if !rl.allow(r.Context(), key) {
					response.RateLimit(w, "too many requests, try again later")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	hashed := fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
	now := time.Now()
	windowStart := now.Add(-rl.config.Window)

	const q = `
INSERT INTO rate_limits (key, count, window_start, expires_at)
VALUES ($1, 1, $2, $3)
ON CONFLICT (key) DO UPDATE SET
	count = CASE
		WHEN rate_limits.window_start < $2 THEN 1
		ELSE rate_limits.count + 1
	END,
	window_start = CASE
		WHEN rate_limits.window_start < $2 THEN $2
		ELSE rate_limits.window_start
	END,
	expires_at = $3
RETURNING count`

	var count int
	if err := rl.pool.QueryRow(ctx, q, hashed, windowStart, now.Add(time.Hour)).Scan(&count); err != nil {
		return true
	}
	return count <= rl.config.Requests
}

// OTPRequestKeyFunc keys code-issuance requests by client IP and, when the
// body carries one, by target email. The body is restored for the handler.
func OTPRequestKeyFunc(r *http.Request) []string {
	var keys []string
	if ip := clientIP(r); ip != "" {
		keys = append(keys, "ip:"+ip)
	}

	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err == nil {
			r.Body = io.NopCloser(strings.NewReader(string(body)))
			var in struct {
				Email string `json:"email"`
			}
			if json.Unmarshal(body, &in) == nil && in.Email != "" {
				keys = append(keys, "email:"+strings.ToLower(strings.TrimSpace(in.Email)))
			}
		}
	}
	return keys
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
