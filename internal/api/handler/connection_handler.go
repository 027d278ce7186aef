package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/api/middleware"
	"github.com/zapline/zapline/internal/pkg/response"
	connectionSvc "github.com/zapline/zapline/internal/service/connection"
	"github.com/zapline/zapline/internal/storage"
)

type ConnectionHandler struct {
	service *connectionSvc.Service
	log     *zap.Logger
}

func NewConnectionHandler(service *connectionSvc.Service, log *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{service: service, log: log}
}

func (h *ConnectionHandler) Register(r *gin.RouterGroup) {
	r.GET("/instances", h.list)
	r.GET("/instances/:id", h.get)
	r.POST("/instances", h.create)
	r.DELETE("/instances/:id", h.delete)
	r.POST("/instances/:id/connect", h.connect)
	r.GET("/instances/:id/qr", h.qr)
	r.POST("/instances/:id/disconnect", h.disconnect)
	r.POST("/instances/:id/token/rotate", h.rotateToken)
}

type createInstanceRequest struct {
	Label  string `json:"label" binding:"required,min=3"`
	Secret string `json:"secret"`
}

func (h *ConnectionHandler) create(c *gin.Context) {
	if c.GetString("authType") == "instance_token" {
		response.ErrorWithMessage(c, http.StatusForbidden, "token de instância não pode criar instâncias")
		return
	}
	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	out, err := h.service.Create(c.Request.Context(), connectionSvc.CreateInput{
		TenantID: middleware.TenantID(c),
		Label:    req.Label,
		Secret:   req.Secret,
	})
	if err != nil {
		if errors.Is(err, connectionSvc.ErrInvalidLabel) {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
		if errors.Is(err, storage.ErrDuplicate) {
			response.ErrorWithMessage(c, http.StatusConflict, "label já em uso")
			return
		}
		h.log.Error("connection handler: falha ao criar instância", zap.Error(err))
		response.Error(c, http.StatusBadGateway, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"instance": out.Instance,
		"token":    out.Token,
	})
}

func (h *ConnectionHandler) list(c *gin.Context) {
	instances, err := h.service.List(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, instances)
}

func (h *ConnectionHandler) get(c *gin.Context) {
	inst, err := h.service.Get(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, inst)
}

func (h *ConnectionHandler) connect(c *gin.Context) {
	out, err := h.service.Connect(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		h.log.Error("connection handler: falha ao conectar", zap.Error(err))
		response.Error(c, http.StatusBadGateway, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"instance":     out.Instance,
		"qr":           out.QRPNG,
		"pairing_code": out.PairingCode,
	})
}

func (h *ConnectionHandler) qr(c *gin.Context) {
	out, err := h.service.QR(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusBadGateway, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"status": out.Instance.Status,
		"qr":     out.QRPNG,
	})
}

func (h *ConnectionHandler) disconnect(c *gin.Context) {
	err := h.service.Disconnect(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"disconnected": true})
}

func (h *ConnectionHandler) delete(c *gin.Context) {
	if c.GetString("authType") == "instance_token" {
		response.ErrorWithMessage(c, http.StatusForbidden, "token de instância não pode remover instâncias")
		return
	}
	err := h.service.Delete(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *ConnectionHandler) rotateToken(c *gin.Context) {
	if c.GetString("authType") == "instance_token" {
		response.ErrorWithMessage(c, http.StatusForbidden, "token de instância não pode rotacionar tokens")
		return
	}
	token, err := h.service.RotateToken(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"token": token})
}
