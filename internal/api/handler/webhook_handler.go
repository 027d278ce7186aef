package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/pkg/response"
	"github.com/zapline/zapline/internal/relay"
)

// HeaderSignature carrega o HMAC do payload, com ou sem o prefixo "sha256=".
const HeaderSignature = "X-Webhook-Signature"

// WebhookHandler expõe os dois endpoints públicos de ingestão. Payload
// autenticado e registrado responde 2xx, assinatura inválida responde 403 e
// só falha de infraestrutura vira 5xx.
type WebhookHandler struct {
	inbound  *relay.Inbound
	outbound *relay.Outbound
	log      *zap.Logger
}

func NewWebhookHandler(inbound *relay.Inbound, outbound *relay.Outbound, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{inbound: inbound, outbound: outbound, log: log}
}

func (h *WebhookHandler) Register(r *gin.RouterGroup) {
	r.POST("/webhooks/wa", h.handleWa)
	r.POST("/webhooks/crm/:tenant", h.handleCrm)
}

func (h *WebhookHandler) handleWa(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.ErrorWithMessage(c, http.StatusBadRequest, "corpo ilegível")
		return
	}

	err = h.inbound.HandleWebhook(c.Request.Context(), rawBody, c.GetHeader(HeaderSignature))
	if err != nil {
		if errors.Is(err, relay.ErrInvalidSignature) {
			response.ErrorWithMessage(c, http.StatusForbidden, "assinatura inválida")
			return
		}
		h.log.Error("webhook wa: falha de processamento", zap.Error(err))
		response.ErrorWithMessage(c, http.StatusInternalServerError, "erro interno")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) handleCrm(c *gin.Context) {
	tenantID := c.Param("tenant")
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.ErrorWithMessage(c, http.StatusBadRequest, "corpo ilegível")
		return
	}

	err = h.outbound.HandleWebhook(
		c.Request.Context(),
		tenantID,
		rawBody,
		c.GetHeader("Content-Type"),
		c.GetHeader(HeaderSignature),
	)
	if err != nil {
		if errors.Is(err, relay.ErrInvalidSignature) {
			response.ErrorWithMessage(c, http.StatusForbidden, "assinatura inválida")
			return
		}
		h.log.Error("webhook crm: falha de processamento", zap.Error(err))
		response.ErrorWithMessage(c, http.StatusInternalServerError, "erro interno")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true})
}
