package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/api/middleware"
	"github.com/zapline/zapline/internal/pkg/response"
	bindingSvc "github.com/zapline/zapline/internal/service/binding"
	"github.com/zapline/zapline/internal/storage"
)

type BindingHandler struct {
	service *bindingSvc.Service
	log     *zap.Logger
}

func NewBindingHandler(service *bindingSvc.Service, log *zap.Logger) *BindingHandler {
	return &BindingHandler{service: service, log: log}
}

func (h *BindingHandler) Register(r *gin.RouterGroup) {
	r.GET("/bindings", h.list)
	r.POST("/bindings", h.bind)
	r.DELETE("/bindings/:lineId", h.unbind)
	r.GET("/lines", h.lines)
}

type bindRequest struct {
	LineID     string `json:"line_id" binding:"required"`
	InstanceID string `json:"instance_id" binding:"required"`
}

func (h *BindingHandler) bind(c *gin.Context) {
	var req bindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	b, err := h.service.Bind(c.Request.Context(), bindingSvc.BindInput{
		TenantID:   middleware.TenantID(c),
		LineID:     req.LineID,
		InstanceID: req.InstanceID,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância ou credencial não encontrada")
			return
		}
		if errors.Is(err, bindingSvc.ErrInvalidLine) {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
		h.log.Error("binding handler: falha ao vincular", zap.Error(err))
		response.Error(c, http.StatusBadGateway, err)
		return
	}

	response.Success(c, http.StatusCreated, b)
}

func (h *BindingHandler) unbind(c *gin.Context) {
	err := h.service.Unbind(c.Request.Context(), middleware.TenantID(c), c.Param("lineId"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "vínculo não encontrado")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unbound": true})
}

func (h *BindingHandler) list(c *gin.Context) {
	bindings, err := h.service.List(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, bindings)
}

func (h *BindingHandler) lines(c *gin.Context) {
	lines, err := h.service.Lines(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "tenant sem credencial ativa")
			return
		}
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	response.Success(c, http.StatusOK, lines)
}
