package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/student-data-vault/internal/service"
)

// AuthHandler serves the login endpoints, account registration and the
// caller's own profile.
//
//   - HandleQRLogin  → POST /api/auth/qr
//   - HandleLogin    → POST /api/auth/login
//   - HandleRegister → POST /api/auth/register (Admin)
//   - HandleMe       → GET  /api/auth/me
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type qrLoginRequest struct {
	QR string `json:"qr"`
}

// HandleQRLogin exchanges an ID card token for a bearer token.
//
// REQUEST BODY: {"qr": "<64 hex chars>"}
// RESPONSE:     {"token": "...", "role": "Student", "userId": "student-1a2b3c4d"}
func (h *AuthHandler) HandleQRLogin(w http.ResponseWriter, r *http.Request) {
	var req qrLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.LoginQR(r.Context(), req.QR)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin exchanges an email and password for a bearer token.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.LoginPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type registeredUser struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

type registerResponse struct {
	Message string         `json:"message"`
	User    registeredUser `json:"user"`
}

// HandleRegister creates an account of any role.
//
// REQUEST BODY: service.RegisterInput
// RESPONSE:     201 {"message": "...", "user": {"userId", "fullName", "role"}}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var req service.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.auth.Register(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "User created successfully",
		User: registeredUser{
			UserID:   user.UserID,
			FullName: user.FullName,
			Role:     string(user.Role),
		},
	})
}

// HandleMe returns the authenticated caller's own record.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	me, err := h.auth.Me(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}
