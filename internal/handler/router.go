package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chatHandler "github.com/avdeenko/trailmate/internal/handler/chat"
	profileHandler "github.com/avdeenko/trailmate/internal/handler/profile"
	userHandler "github.com/avdeenko/trailmate/internal/handler/user"
	wsHandler "github.com/avdeenko/trailmate/internal/handler/ws"
	middlewarePkg "github.com/avdeenko/trailmate/internal/middleware"
	"github.com/avdeenko/trailmate/internal/service/conversation"
	"github.com/avdeenko/trailmate/internal/store"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(repo store.Repository, conversations *conversation.Manager) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	users := userHandler.New(repo, conversations)
	profiles := profileHandler.New(repo)
	chats := chatHandler.New(conversations)
	sockets := wsHandler.New(conversations)

	r.Route("/api", func(api chi.Router) {
		users.RegisterRoutes(api)
		profiles.RegisterRoutes(api)
		chats.RegisterRoutes(api)
		sockets.RegisterRoutes(api)
	})

	return r
}
