package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/http/middleware"
	"github.com/Virang41/visiting/internal/http/response"
	"github.com/Virang41/visiting/internal/service"
)

type AuthHandler struct {
	Auth  *service.AuthService
	OTP   *service.OTPService
	Users service.UsersStore
}

func NewAuthHandler(auth *service.AuthService, otp *service.OTPService, users service.UsersStore) *AuthHandler {
	return &AuthHandler{Auth: auth, OTP: otp, Users: users}
}

// Routes takes the rate limit middleware guarding code issuance so the
// limiter stays wired to exactly the endpoint that sends mail.
func (h *AuthHandler) Routes(otpLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.With(otpLimit).Post("/send-otp", h.sendOTP)
	r.Post("/verify-otp", h.verifyOTP)
	r.Post("/reset-password", h.resetPassword)
	return r
}

// MeRoutes needs RequireJWT mounted above it.
func (h *AuthHandler) MeRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.me)
	r.Put("/", h.updateProfile)
	return r
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var in domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid input")
		return
	}
	u, token, err := h.Auth.Register(r.Context(), &in)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			response.BadRequest(w, err.Error())
			return
		}
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  u.ToUserInfo(),
	})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" {
		response.BadRequest(w, "email and password are required")
		return
	}
	u, token, err := h.Auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  u.ToUserInfo(),
	})
}

func (h *AuthHandler) sendOTP(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email   string `json:"email"`
		Purpose string `json:"purpose"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" {
		response.BadRequest(w, "email is required")
		return
	}
	purpose, ok := domain.ParseOTPPurpose(in.Purpose)
	if !ok {
		response.BadRequest(w, "purpose must be login or reset")
		return
	}
	if _, _, err := h.OTP.Issue(r.Context(), in.Email, purpose); err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, map[string]string{"message": "code sent"})
}

// verifyOTP exchanges a valid code for a credential matching its purpose: an
// access token for login, a short-lived reset token for reset.
func (h *AuthHandler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email   string `json:"email"`
		Purpose string `json:"purpose"`
		Code    string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Code == "" {
		response.BadRequest(w, "email and code are required")
		return
	}
	purpose, ok := domain.ParseOTPPurpose(in.Purpose)
	if !ok {
		response.BadRequest(w, "purpose must be login or reset")
		return
	}
	u, err := h.OTP.Verify(r.Context(), in.Email, purpose, in.Code)
	if err != nil {
		response.FromError(w, err)
		return
	}

	switch purpose {
	case domain.PurposeLogin:
		token, err := h.Auth.AccessToken(u)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, map[string]any{
			"token": token,
			"user":  u.ToUserInfo(),
		})
	case domain.PurposeReset:
		token, err := h.Auth.IssueResetToken(u.ID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, map[string]string{"reset_token": token})
	}
}

func (h *AuthHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ResetToken  string `json:"reset_token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.ResetToken == "" {
		response.BadRequest(w, "reset_token and new_password are required")
		return
	}
	if err := h.Auth.ResetPassword(r.Context(), in.ResetToken, in.NewPassword); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			response.BadRequest(w, err.Error())
			return
		}
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)
	u, err := h.Users.FindByID(r.Context(), claims.Sub)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, u.ToUserInfo())
}

func (h *AuthHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)
	var in struct {
		Name            string `json:"name"`
		Phone           string `json:"phone"`
		Department      string `json:"department"`
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid input")
		return
	}
	u, err := h.Auth.UpdateProfile(r.Context(), claims.Sub, in.Name, in.Phone, in.Department, in.CurrentPassword, in.NewPassword)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			response.BadRequest(w, err.Error())
			return
		}
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, u.ToUserInfo())
}
