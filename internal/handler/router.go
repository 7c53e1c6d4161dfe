package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parkpal/tagchat/backend/internal/handler/chat"
	middlewarePkg "github.com/parkpal/tagchat/backend/internal/middleware"
	"github.com/parkpal/tagchat/backend/internal/model/vehicle"
	chatservice "github.com/parkpal/tagchat/backend/internal/service/chat"
)

// NewRouter wires HTTP routes to the chat engine.
func NewRouter(vehicles vehicle.Registry, chatSvc *chatservice.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(chatSvc, vehicles)
	streamHandler := chat.NewStreamHandler(chatSvc)

	r.Route("/api/chat", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterStreamRoutes(api)
	})

	return r
}
