package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zapline/zapline/internal/config"
)

// HealthHandler responde os probes de liveness sem tocar banco nem redis.
type HealthHandler struct {
	startedAt time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now()}
}

func (h *HealthHandler) Register(r *gin.RouterGroup) {
	r.GET("/", h.root)
	r.GET("/healthz", h.healthz)
}

func (h *HealthHandler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "ZapLine",
		"status":  "ok",
		"version": config.Version,
	})
}

func (h *HealthHandler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": config.Version,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	})
}
