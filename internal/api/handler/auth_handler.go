package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/pkg/response"
	authSvc "github.com/zapline/zapline/internal/service/auth"
	"github.com/zapline/zapline/internal/storage"
)

type AuthHandler struct {
	service *authSvc.Service
	log     *zap.Logger
}

func NewAuthHandler(service *authSvc.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{service: service, log: log}
}

// Register registra a rota pública de login. Criação de usuário fica no grupo
// protegido via RegisterAdmin.
func (h *AuthHandler) Register(r *gin.RouterGroup) {
	r.POST("/auth/login", h.login)
}

func (h *AuthHandler) RegisterAdmin(r *gin.RouterGroup) {
	r.POST("/auth/users", h.createUser)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	out, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, authSvc.ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, err)
			return
		}
		h.log.Error("auth handler: falha no login", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":      out.Token,
		"expires_at": out.ExpiresAt,
		"user":       out.User,
	})
}

type createUserRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

func (h *AuthHandler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	user, err := h.service.Register(c.Request.Context(), authSvc.RegisterInput{
		TenantID: req.TenantID,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		if errors.Is(err, authSvc.ErrInvalidEmail) || errors.Is(err, authSvc.ErrWeakPassword) {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
		if errors.Is(err, storage.ErrDuplicate) {
			response.ErrorWithMessage(c, http.StatusConflict, "email já cadastrado")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}
