package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/pkg/logger"
)

// ErrorResponse is the body every error reply carries.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes surfaced to clients.
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeBadCredentials = "BAD_CREDENTIALS"
	CodeEmailExists    = "EMAIL_EXISTS"
	CodeInactive       = "ACCOUNT_INACTIVE"
	CodeExpired        = "EXPIRED"
	CodeWrongPurpose   = "WRONG_PURPOSE"
	CodeCodeMismatch   = "CODE_MISMATCH"
	CodeInvalidToken   = "INVALID_TOKEN"
	CodeWrongIntent    = "WRONG_INTENT"
	CodeInvalidState   = "INVALID_STATE"
	CodeNotYetValid    = "NOT_YET_VALID"
	CodePassRevoked    = "PASS_REVOKED"
)

// WriteJSON writes v as the JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, status int, message, code string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// FromError maps domain sentinels onto HTTP replies. Anything unmapped is a
// 500 with the detail kept out of the body.
func FromError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not found", CodeNotFound)
	case errors.Is(err, domain.ErrEmailTaken):
		WriteError(w, http.StatusConflict, "email already registered", CodeEmailExists)
	case errors.Is(err, domain.ErrInvalidState):
		WriteError(w, http.StatusConflict, "operation not allowed in current state", CodeInvalidState)
	case errors.Is(err, domain.ErrInactive):
		WriteError(w, http.StatusForbidden, "account is inactive", CodeInactive)
	case errors.Is(err, domain.ErrRevoked):
		WriteError(w, http.StatusForbidden, "pass has been revoked", CodePassRevoked)
	case errors.Is(err, domain.ErrNotYetValid):
		WriteError(w, http.StatusForbidden, "pass is not valid yet", CodeNotYetValid)
	case errors.Is(err, domain.ErrExpired):
		WriteError(w, http.StatusUnauthorized, "expired", CodeExpired)
	case errors.Is(err, domain.ErrWrongPurpose):
		WriteError(w, http.StatusUnauthorized, "code was issued for a different purpose", CodeWrongPurpose)
	case errors.Is(err, domain.ErrCodeMismatch):
		WriteError(w, http.StatusUnauthorized, "invalid code", CodeCodeMismatch)
	case errors.Is(err, domain.ErrInvalidToken):
		WriteError(w, http.StatusUnauthorized, "invalid token", CodeInvalidToken)
	case errors.Is(err, domain.ErrWrongIntent):
		WriteError(w, http.StatusUnauthorized, "token not valid for this operation", CodeWrongIntent)
	case errors.Is(err, domain.ErrBadCredentials):
		WriteError(w, http.StatusUnauthorized, "invalid email or password", CodeBadCredentials)
	default:
		logger.Error("Unhandled error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error", CodeInternalError)
	}
}

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}
