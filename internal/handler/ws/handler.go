package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	userHandler "github.com/avdeenko/trailmate/internal/handler/user"
	"github.com/avdeenko/trailmate/internal/service/conversation"
	"github.com/avdeenko/trailmate/pkg/utils"
)

// Handler serves the live chat loop over a websocket.
type Handler struct {
	conversations *conversation.Manager
	upgrader      websocket.Upgrader
}

// New creates the websocket handler.
func New(conversations *conversation.Manager) *Handler {
	return &Handler{
		conversations: conversations,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/users/{userID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	platformID, err := userHandler.ParseUserID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	log.Printf("[ws] connection %s opened for user=%d", connID, platformID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] connection %s read error: %v", connID, err)
			}
			break
		}

		var inbound inboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			h.send(conn, outgoingMessage{Type: "error", Text: "invalid message format"})
			continue
		}

		switch inbound.Type {
		case "message":
			if inbound.Text == "" {
				h.send(conn, outgoingMessage{Type: "error", Text: "text is required"})
				continue
			}

			reply, err := h.conversations.Send(r.Context(), platformID, inbound.Text)
			if err != nil {
				h.send(conn, outgoingMessage{Type: "error", Text: guardText(err)})
				continue
			}
			h.send(conn, outgoingMessage{Type: "reply", Text: reply})

		case "ping":
			h.send(conn, outgoingMessage{Type: "pong"})

		default:
			h.send(conn, outgoingMessage{Type: "error", Text: "unknown message type"})
		}
	}

	log.Printf("[ws] connection %s closed for user=%d", connID, platformID)
}

func (h *Handler) send(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[ws] write failed: %v", err)
	}
}

// guardText maps conversation guard errors to the phrases the original bot
// used.
func guardText(err error) string {
	switch {
	case errors.Is(err, conversation.ErrNoCharacter):
		return "Please, select a character first."
	case errors.Is(err, conversation.ErrNoPersona):
		return "Please, select a persona first."
	case errors.Is(err, conversation.ErrNoSelection):
		return "Please, select a persona and a character first."
	case errors.Is(err, conversation.ErrNoCredential):
		return "Please, set your API key first."
	}
	return "failed to process message"
}
