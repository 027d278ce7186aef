package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin restringe a rota a JWTs com papel admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("userRole")
		if role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "acesso negado: apenas administradores"})
			return
		}
		c.Next()
	}
}
