package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"directmsg/internal/entity"
	"directmsg/internal/usecase"
)

type HttpHandler struct {
	chat   ChatService
	logger *zap.Logger
}

func NewHttpHandler(chat ChatService, logger *zap.Logger) *HttpHandler {
	return &HttpHandler{
		chat:   chat,
		logger: logger.Named("http"),
	}
}

type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type SendRequest struct {
	Content             string  `json:"content"`
	SharedReviewRef     *string `json:"sharedReviewRef,omitempty"`
	SharedDiscussionRef *string `json:"sharedDiscussionRef,omitempty"`
	TempId              string  `json:"tempId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, usecase.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, usecase.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, usecase.ErrRateLimited):
		return http.StatusTooManyRequests, "too many messages"
	}
	return http.StatusInternalServerError, "internal server error"
}

func (h *HttpHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, Response{Message: message})
}

// Method Get /conversations
func (h *HttpHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	owner := userIdFrom(r)

	entries, err := h.chat.ListConversations(r.Context(), owner)
	if err != nil {
		h.fail(w, r, "list conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Message: "success", Data: entries})
}

// Method Get /conversations/:userId/messages?limit&before
func (h *HttpHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	owner := userIdFrom(r)
	other := chi.URLParam(r, "userId")

	var filter entity.MessageIndexFilter
	query := r.URL.Query()
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, Response{Message: "invalid limit"})
			return
		}
		filter.Limit = limit
	}
	if v := query.Get("before"); v != "" {
		before, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Message: "invalid before"})
			return
		}
		filter.BeforeSeq = before
	}

	messages, err := h.chat.ListMessages(r.Context(), owner, other, filter)
	if err != nil {
		h.fail(w, r, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Message: "success", Data: messages})
}

// Method Post /conversations/:userId/messages
func (h *HttpHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	m, err := h.chat.Send(r.Context(), entity.MessageDraft{
		SenderId:            userIdFrom(r),
		RecipientId:         chi.URLParam(r, "userId"),
		Content:             req.Content,
		SharedReviewRef:     req.SharedReviewRef,
		SharedDiscussionRef: req.SharedDiscussionRef,
		TempId:              req.TempId,
	})
	if err != nil {
		h.fail(w, r, "send", err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Message: "success", Data: m})
}

// Method Post /conversations/:userId/read
func (h *HttpHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	entry, err := h.chat.MarkRead(r.Context(), userIdFrom(r), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, "mark read", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Message: "success", Data: entry})
}

// Method Delete /messages/:messageId
func (h *HttpHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageId := chi.URLParam(r, "messageId")

	if err := h.chat.DeleteMessage(r.Context(), userIdFrom(r), messageId); err != nil {
		h.fail(w, r, "delete message", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Message: "success", Data: map[string]string{"messageId": messageId}})
}

func (h *HttpHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Message: "ok"})
}
