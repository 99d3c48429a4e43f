package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"directmsg/infrastructure/ws"
	"directmsg/internal/entity"
	"directmsg/internal/metrics"
	"directmsg/internal/usecase"
)

type WebsocketHandler struct {
	hub        ws.IHub
	chatUc     usecase.ChatUsecase
	metrics    *metrics.Metrics
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	sendBuffer int
}

func NewWebsocketHandler(hub ws.IHub, chatUc usecase.ChatUsecase, m *metrics.Metrics, allowedOrigin string, sendBuffer int, logger *zap.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		hub:     hub,
		chatUc:  chatUc,
		metrics: m,
		logger:  logger.Named("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
		sendBuffer: sendBuffer,
	}
}

// session is the per-socket state. It is only touched from the read pump.
type session struct {
	client        *ws.UserClient
	authenticated string
	userId        string
}

func (s *session) joined() bool {
	return s.userId != ""
}

func (h *WebsocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, ok := entity.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	s := &session{
		client:        ws.NewClient(conn, h.sendBuffer),
		authenticated: claims.UserId,
	}

	go s.client.WritePump()
	s.client.ReadPump(func(data []byte) {
		h.handleMessage(ctx, s, data)
	})

	if s.joined() {
		h.hub.UnregisterClient(ctx, s.client)
		h.metrics.LiveConnections.Set(float64(h.hub.GetClientCount()))
	}
}

func (h *WebsocketHandler) handleMessage(ctx context.Context, s *session, data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		h.reply(s, entity.EventError, ErrorPayload{Message: "malformed request"})
		return
	}

	if req.Type == RequestJoin {
		h.handleJoin(ctx, s, req)
		return
	}
	if !s.joined() {
		h.reply(s, entity.EventError, ErrorPayload{Request: req.Type, Message: "join first"})
		return
	}

	switch req.Type {
	case RequestSend:
		h.handleSend(ctx, s, req)
	case RequestRead:
		if _, err := h.chatUc.MarkRead(ctx, s.userId, req.OtherUserId); err != nil {
			h.replyError(s, req.Type, err)
		}
	case RequestDelete:
		if err := h.chatUc.DeleteMessage(ctx, s.userId, req.MessageId); err != nil {
			h.replyError(s, req.Type, err)
		}
	default:
		h.reply(s, entity.EventError, ErrorPayload{Request: req.Type, Message: "unknown request type"})
	}
}

// handleJoin binds the connection to the authenticated user. Joining again
// is harmless.
func (h *WebsocketHandler) handleJoin(ctx context.Context, s *session, req Request) {
	if req.UserId != "" && req.UserId != s.authenticated {
		h.reply(s, entity.EventError, ErrorPayload{Request: req.Type, Message: "forbidden"})
		return
	}

	s.userId = s.authenticated
	h.hub.RegisterClient(ctx, s.userId, s.client)
	h.metrics.LiveConnections.Set(float64(h.hub.GetClientCount()))

	h.reply(s, entity.EventJoined, JoinedPayload{UserId: s.userId, ConnectionId: s.client.Id()})
}

func (h *WebsocketHandler) handleSend(ctx context.Context, s *session, req Request) {
	m, err := h.chatUc.Send(ctx, entity.MessageDraft{
		SenderId:            s.userId,
		RecipientId:         req.RecipientId,
		Content:             req.Content,
		SharedReviewRef:     req.SharedReviewRef,
		SharedDiscussionRef: req.SharedDiscussionRef,
		TempId:              req.TempId,
		OriginConnId:        s.client.Id(),
	})
	if err != nil {
		h.reply(s, entity.EventSendFailed, SendFailedPayload{
			TempId:              req.TempId,
			RecipientId:         req.RecipientId,
			Content:             req.Content,
			SharedReviewRef:     req.SharedReviewRef,
			SharedDiscussionRef: req.SharedDiscussionRef,
			Reason:              reason(err),
		})
		return
	}
	h.reply(s, entity.EventMessageSent, m)
}

func (h *WebsocketHandler) replyError(s *session, request string, err error) {
	h.reply(s, entity.EventError, ErrorPayload{Request: request, Message: reason(err)})
}

func (h *WebsocketHandler) reply(s *session, event string, data any) {
	payload, err := json.Marshal(entity.Event{Event: event, Data: data})
	if err != nil {
		h.logger.Error("encode reply", zap.String("event", event), zap.Error(err))
		return
	}
	if err := s.client.Send(payload); err != nil {
		h.logger.Warn("reply dropped", zap.String("event", event), zap.String("connId", s.client.Id()), zap.Error(err))
	}
}

// reason is the client-facing text for err. Internal failures stay opaque.
func reason(err error) string {
	switch {
	case errors.Is(err, usecase.ErrValidation):
		return err.Error()
	case errors.Is(err, usecase.ErrForbidden):
		return "forbidden"
	case errors.Is(err, usecase.ErrNotFound):
		return "not found"
	case errors.Is(err, usecase.ErrRateLimited):
		return "too many messages"
	}
	return "internal error"
}
