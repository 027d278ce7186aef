package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/pkg/ratelimiter"
)

type IPRateLimitOption struct {
	Enabled        bool
	Requests       int
	WindowSeconds  int
	Limiter        ratelimiter.Limiter
	Logger         *zap.Logger
	SkipPrivateIPs bool
}

// IPRateLimit protege as rotas públicas (webhooks, login) contando por IP
// de origem. É a única barreira antes da validação de assinatura, então o
// limite precisa acomodar as rajadas de reentrega das plataformas.
func IPRateLimit(opts IPRateLimitOption) gin.HandlerFunc {
	if !opts.Enabled || opts.Limiter == nil || opts.Requests <= 0 || opts.WindowSeconds <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	window := time.Duration(opts.WindowSeconds) * time.Second

	return func(c *gin.Context) {
		ip := GetClientIP(c)
		if opts.SkipPrivateIPs && IsPrivateIP(ip) {
			c.Next()
			return
		}

		res, err := opts.Limiter.Allow(c.Request.Context(), "ratelimit:ip:"+digest(ip), opts.Requests, window)
		if err != nil {
			if opts.Logger != nil {
				opts.Logger.Warn("ip rate limit: limiter indisponível", zap.Error(err))
			}
			c.Next()
			return
		}

		writeLimitHeaders(c, opts.Requests, res)
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
			if opts.Logger != nil {
				opts.Logger.Warn("ip rate limit: limite excedido", zap.String("ip", ip))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "muitas tentativas. tente novamente mais tarde",
			})
			return
		}
		c.Next()
	}
}
