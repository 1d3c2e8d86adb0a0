package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	userHandler "github.com/avdeenko/trailmate/internal/handler/user"
	"github.com/avdeenko/trailmate/internal/service/conversation"
	"github.com/avdeenko/trailmate/internal/store"
	"github.com/avdeenko/trailmate/pkg/utils"
)

// Guard phrases shown to users who message before the conversation is set
// up.
const (
	msgNoCharacter  = "Please, select a character first."
	msgNoPersona    = "Please, select a persona first."
	msgNoSelection  = "Please, select a persona and a character first."
	msgNoCredential = "Please, set your API key first."
)

// Handler drives the conversation endpoints.
type Handler struct {
	conversations *conversation.Manager
}

// New creates the chat handler.
func New(conversations *conversation.Manager) *Handler {
	return &Handler{conversations: conversations}
}

// RegisterRoutes registers conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users/{userID}/chat", func(r chi.Router) {
		r.Post("/character", h.handleSelectCharacter)
		r.Post("/persona", h.handleSelectPersona)
		r.Post("/messages", h.handleSendMessage)
		r.Post("/reset", h.handleReset)
		r.Post("/history/clear", h.handleClearHistory)
		r.Get("/status", h.handleStatus)
		r.Get("/stream", h.handleStream)
	})
}

// handleSelectCharacter activates a saved character for the conversation.
func (h *Handler) handleSelectCharacter(w http.ResponseWriter, r *http.Request) {
	platformID, err := userHandler.ParseUserID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var payload struct {
		CharacterID int64 `json:"characterId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	selected, err := h.conversations.SelectCharacter(r.Context(), platformID, payload.CharacterID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) || errors.Is(err, store.ErrUserNotFound) {
			utils.RespondError(w, http.StatusNotFound, "character not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to select character")
		return
	}

	utils.RespondJSON(w, http.StatusOK, selected)
}

// handleSelectPersona activates a saved persona for the conversation.
func (h *Handler) handleSelectPersona(w http.ResponseWriter, r *http.Request) {
	platformID, err := userHandler.ParseUserID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var payload struct {
		PersonaID int64 `json:"personaId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	selected, err := h.conversations.SelectPersona(r.Context(), platformID, payload.PersonaID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) || errors.Is(err, store.ErrUserNotFound) {
			utils.RespondError(w, http.StatusNotFound, "persona not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to select persona")
		return
	}

	utils.RespondJSON(w, http.StatusOK, selected)
}

// handleSendMessage sends one user message and returns the reply text.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	platformID, err := userHandler.ParseUserID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	reply, err := h.conversations.Send(r.Context(), platformID, payload.Text)
	if err != nil {
		respondGuardError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// handleReset starts a fresh chat with the current selection.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	platformID, err := userHandler.ParseUserID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.conversations.Reset(platformID); err != nil {
		respondGuardError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "You may now start a fresh chat."})
}

// handleClearHistory empties the running transcript.
func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	platformID, err := userHandler.ParseUserID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	h.conversations.ClearHistory(platformID)
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus reports the active character and persona.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	platformID, err := userHandler.ParseUserID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.conversations.Status(platformID))
}

// handleStream answers one message over Server-Sent Events with
// start/message/end frames.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	platformID, err := userHandler.ParseUserID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	message := r.URL.Query().Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, map[string]any{"event": "start"})

	reply, err := h.conversations.Send(r.Context(), platformID, message)
	if err != nil {
		msg := guardMessage(err)
		if msg == "" {
			msg = "failed to process message"
		}
		utils.SendSSEChunk(w, flusher, map[string]any{
			"event": "error",
			"error": msg,
		})
		return
	}

	utils.SendSSEChunk(w, flusher, map[string]any{
		"event":   "message",
		"content": reply,
	})
	utils.SendSSEChunk(w, flusher, map[string]any{
		"event":    "end",
		"finished": true,
	})

	log.Printf("[chat] completed stream response for user=%s", strconv.FormatInt(platformID, 10))
}

// respondGuardError maps conversation guard errors to user-facing
// responses.
func respondGuardError(w http.ResponseWriter, err error) {
	if msg := guardMessage(err); msg != "" {
		utils.RespondError(w, http.StatusConflict, msg)
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, "failed to process message")
}

// guardMessage returns the original bot phrasing for each guard error,
// empty for non-guard failures.
func guardMessage(err error) string {
	switch {
	case errors.Is(err, conversation.ErrNoCharacter):
		return msgNoCharacter
	case errors.Is(err, conversation.ErrNoPersona):
		return msgNoPersona
	case errors.Is(err, conversation.ErrNoSelection):
		return msgNoSelection
	case errors.Is(err, conversation.ErrNoCredential):
		return msgNoCredential
	}
	return ""
}
