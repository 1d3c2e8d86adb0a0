package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/avdeenko/trailmate/internal/service/conversation"
	"github.com/avdeenko/trailmate/internal/store"
	"github.com/avdeenko/trailmate/pkg/utils"
)

// Handler manages user registration and credential storage.
type Handler struct {
	repo          store.Repository
	conversations *conversation.Manager
}

// New creates the user handler.
func New(repo store.Repository, conversations *conversation.Manager) *Handler {
	return &Handler{
		repo:          repo,
		conversations: conversations,
	}
}

// RegisterRoutes registers user routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/users", h.handleRegister)
	r.Put("/users/{userID}/credential", h.handleSetCredential)
}

// handleRegister creates the user record on first contact.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PlatformID int64 `json:"platformId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.PlatformID == 0 {
		utils.RespondError(w, http.StatusBadRequest, "platformId is required")
		return
	}

	u, err := h.repo.EnsureUser(r.Context(), payload.PlatformID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, u)
}

// handleSetCredential stores the user's model API key. The key is not
// validated here; a bad key surfaces as a fallback reply on the next send.
func (h *Handler) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	platformID, err := ParseUserID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var payload struct {
		Credential string `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Credential == "" {
		utils.RespondError(w, http.StatusBadRequest, "credential is required")
		return
	}

	if err := h.repo.SetCredential(r.Context(), platformID, payload.Credential); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			utils.RespondError(w, http.StatusNotFound, "user not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to save credential")
		return
	}

	// Live sessions keep their old client; drop them so the new key is
	// picked up on the next message.
	h.conversations.InvalidateCredential(platformID)

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// ParseUserID extracts the platform account id from the request path.
func ParseUserID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}
