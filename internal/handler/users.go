package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/student-data-vault/internal/idcard"
	"github.com/sakif/student-data-vault/internal/service"
)

// UserHandler serves the admin account endpoints under /api/users.
type UserHandler struct {
	users  *service.UserService
	cards  *idcard.Renderer
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *service.UserService, cards *idcard.Renderer, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, cards: cards, logger: logger}
}

// HandleList returns every account with its decrypted address.
//
// HTTP: GET /api/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	users, err := h.users.List(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGet returns one account.
//
// HTTP: GET /api/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleIDCard returns the card data and an HTML fragment.
//
// HTTP: GET /api/users/id-card/{id}
func (h *UserHandler) HandleIDCard(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	card, err := h.users.IDCard(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// HandlePrintIDCard renders the card as a standalone printable page.
//
// HTTP: GET /api/users/id-card/{id}/print
func (h *UserHandler) HandlePrintIDCard(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	card, err := h.users.IDCard(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.cards.Page(w, card.Card); err != nil {
		h.logger.Error("failed to render ID card page", slog.String("error", err.Error()))
	}
}

// HandleUpdate changes the fields present in the body.
//
// HTTP: PUT /api/users/{id}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var req service.UpdateUserInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.users.Update(r.Context(), actor, chi.URLParam(r, "id"), req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User updated successfully"})
}

// HandleDelete removes an account.
//
// HTTP: DELETE /api/users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

type qrResponse struct {
	Message string `json:"message"`
	*service.QRCode
}

// HandleGenerateQR issues a new card token, revoking the old one.
//
// HTTP: POST /api/users/generate-qr/{id}
func (h *UserHandler) HandleGenerateQR(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	qr, err := h.users.RegenerateQR(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, qrResponse{Message: "New QR code generated successfully", QRCode: qr})
}
