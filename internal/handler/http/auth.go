package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/utafrali/authgate/internal/domain"
	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/httputil"
	"github.com/utafrali/authgate/pkg/middleware"
	"github.com/utafrali/authgate/pkg/validator"
)

const maxBodyBytes = 1 << 20

// Response messages.
const (
	MsgAccountConfirmed = "Account confirmed successfully"
	MsgResetCodeSent    = "Password reset code sent to your email address"
	MsgPasswordReset    = "Password has been reset successfully"
	MsgWelcomeAdmin     = "Welcome, admin user"
)

// AuthService is the set of auth operations the handler delegates to.
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	ConfirmSignUp(ctx context.Context, email, code string) error
	SignIn(ctx context.Context, email, password string) (*domain.TokenBundle, error)
	RefreshTokens(ctx context.Context, refreshToken, email string) (*domain.TokenBundle, error)
	ForgotPassword(ctx context.Context, email string) error
	ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// SignUpRequest is the JSON request body for registration.
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// ConfirmationRequest is the JSON request body for confirming a sign-up.
type ConfirmationRequest struct {
	Email            string `json:"email" validate:"required,email"`
	ConfirmationCode string `json:"confirmation_code" validate:"required"`
}

// SignInRequest is the JSON request body for sign-in.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the JSON request body for a token refresh. Email is only
// needed when the app client has a secret.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
}

// ForgotPasswordRequest carries the email query parameter.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ConfirmForgotPasswordRequest is the JSON request body for completing a
// password reset.
type ConfirmForgotPasswordRequest struct {
	Email            string `json:"email" validate:"required,email"`
	ConfirmationCode string `json:"confirmation_code" validate:"required"`
	Password         string `json:"password" validate:"required,min=8"`
}

// --- Response types ---

// SignUpResponse is returned after a successful registration.
type SignUpResponse struct {
	ID string `json:"id"`
}

// --- Handlers ---

// SignUp handles POST /api/v1/auth/sign_up
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decode(w, r, &req) {
		return
	}

	id, err := h.service.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, SignUpResponse{ID: id})
}

// ConfirmSignUp handles POST /api/v1/auth/sign_up/confirm
func (h *AuthHandler) ConfirmSignUp(w http.ResponseWriter, r *http.Request) {
	var req ConfirmationRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.ConfirmSignUp(r.Context(), req.Email, req.ConfirmationCode); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, MsgAccountConfirmed)
}

// SignIn handles POST /api/v1/auth/sign_in
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decode(w, r, &req) {
		return
	}

	bundle, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, bundle)
}

// RefreshToken handles POST /api/v1/auth/token/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	bundle, err := h.service.RefreshTokens(r.Context(), req.RefreshToken, req.Email)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, bundle)
}

// ForgotPassword handles POST /api/v1/auth/forgot_password?email=
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	req := ForgotPasswordRequest{Email: r.URL.Query().Get("email")}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, MsgResetCodeSent)
}

// ConfirmForgotPassword handles POST /api/v1/auth/forgot_password/confirm
func (h *AuthHandler) ConfirmForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ConfirmForgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.service.ConfirmForgotPassword(r.Context(), req.Email, req.ConfirmationCode, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, MsgPasswordReset)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	groups := p.Groups
	if groups == nil {
		groups = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, domain.CurrentUser{
		ID:     p.Subject,
		Email:  p.Email,
		Groups: groups,
	})
}

// Admin handles GET /api/v1/auth/admin. The group check happens in
// middleware.RequireGroup.
func (h *AuthHandler) Admin(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteMessage(w, http.StatusOK, MsgWelcomeAdmin)
}

// decode reads and validates a JSON body into dst. On failure it writes the
// 400 response and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}
	return true
}
