package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/api/middleware"
	"github.com/zapline/zapline/internal/pkg/response"
	"github.com/zapline/zapline/internal/storage"
)

type ConversationHandler struct {
	conversations storage.ConversationRepository
	messages      storage.MessageRepository
	webhookLog    storage.WebhookLogRepository
	log           *zap.Logger
}

func NewConversationHandler(
	conversations storage.ConversationRepository,
	messages storage.MessageRepository,
	webhookLog storage.WebhookLogRepository,
	log *zap.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		webhookLog:    webhookLog,
		log:           log,
	}
}

func (h *ConversationHandler) Register(r *gin.RouterGroup) {
	r.GET("/conversations/:id", h.get)
	r.GET("/conversations/:id/messages", h.messagesOf)
	r.GET("/webhook-log", h.webhookLogList)
}

func (h *ConversationHandler) get(c *gin.Context) {
	conv, err := h.conversations.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "conversa não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	if conv.TenantID != middleware.TenantID(c) {
		response.ErrorWithMessage(c, http.StatusNotFound, "conversa não encontrada")
		return
	}
	response.Success(c, http.StatusOK, conv)
}

func (h *ConversationHandler) messagesOf(c *gin.Context) {
	conv, err := h.conversations.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "conversa não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	if conv.TenantID != middleware.TenantID(c) {
		response.ErrorWithMessage(c, http.StatusNotFound, "conversa não encontrada")
		return
	}

	msgs, err := h.messages.ListByConversation(c.Request.Context(), conv.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, msgs)
}

func (h *ConversationHandler) webhookLogList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.webhookLog.ListByTenant(c.Request.Context(), middleware.TenantID(c), limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}
