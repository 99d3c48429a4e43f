package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	wsDelivery "directmsg/internal/delivery/websocket"
)

func MapHttpRoutes(r chi.Router, httpHandler *HttpHandler, websocketHandler *wsDelivery.WebsocketHandler, authMiddleware *AuthMiddleware, metricsHandler http.Handler) {
	r.Get("/healthz", httpHandler.Health)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Get("/ws", websocketHandler.HandleWebSocket)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", httpHandler.ListConversations)
			r.Get("/{userId}/messages", httpHandler.ListMessages)
			r.Post("/{userId}/messages", httpHandler.SendMessage)
			r.Post("/{userId}/read", httpHandler.MarkRead)
		})

		r.Delete("/messages/{messageId}", httpHandler.DeleteMessage)
	})
}
