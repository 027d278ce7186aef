package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/zapline/zapline/internal/api/handler"
	"github.com/zapline/zapline/internal/api/middleware"
	"github.com/zapline/zapline/internal/storage"
)

type Options struct {
	Env        string
	AuthSecret string

	HealthHandler       *handler.HealthHandler
	AuthHandler         *handler.AuthHandler
	WebhookHandler      *handler.WebhookHandler
	CredentialHandler   *handler.CredentialHandler
	ConnectionHandler   *handler.ConnectionHandler
	BindingHandler      *handler.BindingHandler
	ConversationHandler *handler.ConversationHandler

	InstanceRepo storage.InstanceRepository
	RateLimit    middleware.RateLimitOption
	IPRateLimit  middleware.IPRateLimitOption
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID, handler.HeaderSignature},
		MaxAge:       12 * time.Hour,
	}))

	api := router.Group("/api")

	opts.HealthHandler.Register(api)
	opts.AuthHandler.Register(api)

	// Webhooks são públicos: a autenticação é a assinatura HMAC do payload,
	// não o bearer token. Limite por IP cobre abuso.
	public := api.Group("")
	if opts.IPRateLimit.Enabled {
		public.Use(middleware.IPRateLimit(opts.IPRateLimit))
	}
	opts.WebhookHandler.Register(public)

	protected := api.Group("")
	if opts.RateLimit.Enabled {
		protected.Use(middleware.RateLimit(opts.RateLimit))
	}
	protected.Use(middleware.AuthWithOptions(middleware.AuthOption{
		JWTSecret:    opts.AuthSecret,
		InstanceRepo: opts.InstanceRepo,
	}))

	opts.CredentialHandler.Register(protected)
	opts.ConnectionHandler.Register(protected)
	opts.BindingHandler.Register(protected)
	opts.ConversationHandler.Register(protected)

	admin := protected.Group("")
	admin.Use(middleware.RequireAdmin())
	opts.AuthHandler.RegisterAdmin(admin)

	return router
}
