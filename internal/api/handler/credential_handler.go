package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/api/middleware"
	"github.com/zapline/zapline/internal/pkg/response"
	credentialSvc "github.com/zapline/zapline/internal/service/credential"
	"github.com/zapline/zapline/internal/storage"
)

type CredentialHandler struct {
	service *credentialSvc.Service
	// handlerURL é a URL pública registrada no CRM para receber eventos.
	handlerURL string
	log        *zap.Logger
}

func NewCredentialHandler(service *credentialSvc.Service, handlerURL string, log *zap.Logger) *CredentialHandler {
	return &CredentialHandler{service: service, handlerURL: handlerURL, log: log}
}

func (h *CredentialHandler) Register(r *gin.RouterGroup) {
	r.POST("/credentials/install", h.install)
	r.DELETE("/credentials", h.uninstall)
	r.GET("/credentials", h.get)
}

type installRequest struct {
	PortalURL     string `json:"portal_url" binding:"required"`
	Code          string `json:"code" binding:"required"`
	WebhookSecret string `json:"webhook_secret"`
}

// install conclui o fluxo OAuth do portal: troca o authorization code,
// registra o conector e vincula os webhooks de evento.
func (h *CredentialHandler) install(c *gin.Context) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	tenantID := middleware.TenantID(c)
	cred, err := h.service.Install(c.Request.Context(), credentialSvc.InstallInput{
		TenantID:      tenantID,
		PortalURL:     req.PortalURL,
		Code:          req.Code,
		WebhookSecret: req.WebhookSecret,
		HandlerURL:    h.webhookURLFor(tenantID),
	})
	if err != nil {
		if errors.Is(err, credentialSvc.ErrInvalidPortal) || errors.Is(err, credentialSvc.ErrInvalidCode) {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
		h.log.Error("credential handler: falha na instalação", zap.Error(err))
		response.Error(c, http.StatusBadGateway, err)
		return
	}

	response.Success(c, http.StatusCreated, cred)
}

func (h *CredentialHandler) uninstall(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	err := h.service.Uninstall(c.Request.Context(), tenantID, h.webhookURLFor(tenantID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "tenant sem credencial ativa")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"uninstalled": true})
}

func (h *CredentialHandler) get(c *gin.Context) {
	cred, err := h.service.GetActive(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "tenant sem credencial ativa")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, cred)
}

func (h *CredentialHandler) webhookURLFor(tenantID string) string {
	if h.handlerURL == "" {
		return ""
	}
	return h.handlerURL + "/api/webhooks/crm/" + tenantID
}
