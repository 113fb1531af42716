package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/service"
)

// UserHandler serves user profile endpoints.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// userDTO is the wire representation of a profile.
type userDTO struct {
	ID            string    `json:"userId"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	WalletAddress string    `json:"walletAddress,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toUserDTO(p domain.UserProfile) userDTO {
	return userDTO{
		ID:            p.ID,
		Name:          p.Name,
		Email:         p.Email,
		WalletAddress: p.WalletAddress,
		CreatedAt:     p.CreatedAt,
	}
}

// registerRequest is the payload for POST /api/user/register.
type registerRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	WalletAddress string `json:"walletAddress"`
}

// Register handles POST /api/user/register.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	profile, err := h.users.Register(r.Context(), req.Name, req.Email, req.WalletAddress)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(profile))
}

// GetUser handles GET /api/user/{id}.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	profile, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(profile))
}

// setWalletRequest is the payload for PUT /api/user/{id}/wallet.
type setWalletRequest struct {
	WalletAddress string `json:"walletAddress"`
}

// SetWallet handles PUT /api/user/{id}/wallet.
func (h *UserHandler) SetWallet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	var req setWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	profile, err := h.users.SetWallet(r.Context(), id, req.WalletAddress)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(profile))
}
