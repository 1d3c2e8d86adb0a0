package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	userHandler "github.com/avdeenko/trailmate/internal/handler/user"
	profileModel "github.com/avdeenko/trailmate/internal/model/profile"
	"github.com/avdeenko/trailmate/internal/store"
	"github.com/avdeenko/trailmate/pkg/utils"
)

// Handler exposes character and persona CRUD for a user.
type Handler struct {
	repo store.Repository
}

// New creates the profile handler.
func New(repo store.Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes registers character and persona routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users/{userID}/characters", func(r chi.Router) {
		r.Get("/", h.listHandler(h.repo.ListCharacters))
		r.Post("/", h.createHandler(h.repo.CreateCharacter))
		r.Delete("/{profileID}", h.deleteHandler(h.repo.DeleteCharacter))
	})

	r.Route("/users/{userID}/personas", func(r chi.Router) {
		r.Get("/", h.listHandler(h.repo.ListPersonas))
		r.Post("/", h.createHandler(h.repo.CreatePersona))
		r.Delete("/{profileID}", h.deleteHandler(h.repo.DeletePersona))
	})
}

func (h *Handler) listHandler(list func(context.Context, int64) ([]profileModel.Profile, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platformID, err := userHandler.ParseUserID(r)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		profiles, err := list(r.Context(), platformID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				utils.RespondError(w, http.StatusNotFound, "user not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "failed to list profiles")
			return
		}

		if profiles == nil {
			profiles = []profileModel.Profile{}
		}
		utils.RespondJSON(w, http.StatusOK, profiles)
	}
}

func (h *Handler) createHandler(create func(context.Context, int64, string, string) (*profileModel.Profile, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platformID, err := userHandler.ParseUserID(r)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		var payload struct {
			Name   string `json:"name"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if payload.Name == "" || payload.Prompt == "" {
			utils.RespondError(w, http.StatusBadRequest, "name and prompt are required")
			return
		}

		created, err := create(r.Context(), platformID, payload.Name, payload.Prompt)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				utils.RespondError(w, http.StatusNotFound, "user not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "failed to save profile")
			return
		}

		utils.RespondJSON(w, http.StatusCreated, created)
	}
}

func (h *Handler) deleteHandler(del func(context.Context, int64, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platformID, err := userHandler.ParseUserID(r)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		profileID, err := strconv.ParseInt(chi.URLParam(r, "profileID"), 10, 64)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid profile id")
			return
		}

		if err := del(r.Context(), platformID, profileID); err != nil {
			switch {
			case errors.Is(err, store.ErrProfileNotFound):
				utils.RespondError(w, http.StatusNotFound, "profile not found")
			case errors.Is(err, store.ErrUserNotFound):
				utils.RespondError(w, http.StatusNotFound, "user not found")
			default:
				utils.RespondError(w, http.StatusInternalServerError, "failed to delete profile")
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
