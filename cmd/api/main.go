package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/api/handler"
	"github.com/zapline/zapline/internal/api/middleware"
	"github.com/zapline/zapline/internal/app"
	"github.com/zapline/zapline/internal/config"
	"github.com/zapline/zapline/internal/crm"
	"github.com/zapline/zapline/internal/logger"
	"github.com/zapline/zapline/internal/pkg/backoff"
	"github.com/zapline/zapline/internal/relay"
	"github.com/zapline/zapline/internal/server"
	authSvc "github.com/zapline/zapline/internal/service/auth"
	bindingSvc "github.com/zapline/zapline/internal/service/binding"
	connectionSvc "github.com/zapline/zapline/internal/service/connection"
	credentialSvc "github.com/zapline/zapline/internal/service/credential"
	"github.com/zapline/zapline/internal/session"
	"github.com/zapline/zapline/internal/storage/factory"
	storage_redis "github.com/zapline/zapline/internal/storage/redis"
	"github.com/zapline/zapline/internal/wa"
)

func main() {
	cfg := config.Load()

	logr, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	logr.Info("iniciando aplicação",
		zap.String("env", cfg.App.Env),
		zap.String("log_level", cfg.Log.Level),
		zap.String("port", cfg.App.Port),
		zap.String("db_driver", cfg.Storage.Driver),
	)

	repos, err := factory.NewRepositories(cfg, logr)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	credentials := credentialSvc.NewEncryptedStore(repos.Credential, cfg.CRM.CredentialKeyEnc)

	// Lado CRM
	crmTimeout := time.Duration(cfg.CRM.TimeoutSeconds) * time.Second
	oauthClient := crm.NewOAuthClient(cfg.CRM.TokenURL, cfg.CRM.ClientID, cfg.CRM.ClientSecret, crmTimeout)
	refresher := crm.NewRefresher(oauthClient, credentials, logr)
	crmClient := crm.NewClient(refresher, cfg.CRM.ConnectorCode, cfg.CRM.ConnectorName, crmTimeout, logr)

	// Lado WA
	waTimeout := time.Duration(cfg.WA.TimeoutSeconds) * time.Second
	waClient := wa.NewClient(cfg.WA.BaseURL, cfg.WA.AdminToken, waTimeout, logr)

	// Máquina de sessão e polling
	machine := session.NewMachine(repos.Instance, logr)
	machineCtx, stopMachine := context.WithCancel(context.Background())
	go machine.Run(machineCtx)

	registry := session.NewRegistry()
	poller := session.NewPoller(
		waStatusAdapter{waClient},
		machine,
		registry,
		time.Duration(cfg.Polling.IntervalSeconds)*time.Second,
		time.Duration(cfg.Polling.MaxSeconds)*time.Second,
		logr,
	)

	lockFor := connectionSvc.LockFactory(nil)
	if repos.RedisClient != nil {
		redisClient := repos.RedisClient
		lockTTL := time.Duration(cfg.Polling.MaxSeconds+10) * time.Second
		lockFor = func(instanceID string) session.PollerLock {
			return storage_redis.NewLock(redisClient, "poller:lock:"+instanceID, lockTTL)
		}
	}

	// Relays
	policy := backoff.New(cfg.Relay.MaxAttempts, time.Duration(cfg.Relay.BaseBackoffMS)*time.Millisecond)
	resolver := relay.NewResolver(repos.Contact, repos.Conversation)
	guard := relay.NewGuard(repos.Message)

	inbound := relay.NewInbound(relay.InboundOptions{
		Instances:     repos.Instance,
		Bindings:      repos.Binding,
		Messages:      repos.Message,
		Conversations: repos.Conversation,
		Credentials:   credentials,
		WebhookLog:    repos.WebhookLog,
		Resolver:      resolver,
		Guard:         guard,
		CrmSender:     crmClient,
		Machine:       machine,
		RetryQueue:    repos.RetryQueue,
		Policy:        policy,
		Logger:        logr,
	})

	outbound := relay.NewOutbound(relay.OutboundOptions{
		Instances:     repos.Instance,
		Bindings:      repos.Binding,
		Messages:      repos.Message,
		Conversations: repos.Conversation,
		Contacts:      repos.Contact,
		Credentials:   credentials,
		WebhookLog:    repos.WebhookLog,
		Resolver:      resolver,
		Guard:         guard,
		WaSender:      waClient,
		RetryQueue:    repos.RetryQueue,
		Policy:        policy,
		Logger:        logr,
	})

	sweepPool := relay.NewPool(relay.PoolOptions{
		Queue:         repos.RetryQueue,
		Messages:      repos.Message,
		Conversations: repos.Conversation,
		Contacts:      repos.Contact,
		Bindings:      repos.Binding,
		Inbound:       inbound,
		Outbound:      outbound,
		Logger:        logr,
		NumWorkers:    cfg.Relay.SweepWorkers,
	})
	sweepPool.Start(context.Background())
	logr.Info("varredura de reenvio iniciada", zap.Int("workers", cfg.Relay.SweepWorkers))

	// Serviços
	credentialService := credentialSvc.NewService(credentials, oauthClient, crmClient, logr)
	connectionService := connectionSvc.NewService(repos.Instance, waClient, machine, poller, registry, lockFor, logr)
	bindingService := bindingSvc.NewService(repos.Binding, repos.Instance, credentials, crmClient, logr)
	authService := authSvc.NewService(repos.User, cfg.JWT.Secret, time.Duration(cfg.JWT.ExpHours)*time.Hour)

	// Retoma o acompanhamento de pareamentos interrompidos pelo restart.
	if err := connectionService.ResumePollers(context.Background()); err != nil {
		logr.Warn("falha ao retomar pollers pendentes", zap.Error(err))
	}

	// Handlers
	healthHandler := handler.NewHealthHandler()
	authHandler := handler.NewAuthHandler(authService, logr)
	webhookHandler := handler.NewWebhookHandler(inbound, outbound, logr)
	credentialHandler := handler.NewCredentialHandler(credentialService, cfg.App.BaseURL, logr)
	connectionHandler := handler.NewConnectionHandler(connectionService, logr)
	bindingHandler := handler.NewBindingHandler(bindingService, logr)
	conversationHandler := handler.NewConversationHandler(repos.Conversation, repos.Message, repos.WebhookLog, logr)

	router := server.NewRouter(server.Options{
		Env:                 cfg.App.Env,
		AuthSecret:          cfg.JWT.Secret,
		HealthHandler:       healthHandler,
		AuthHandler:         authHandler,
		WebhookHandler:      webhookHandler,
		CredentialHandler:   credentialHandler,
		ConnectionHandler:   connectionHandler,
		BindingHandler:      bindingHandler,
		ConversationHandler: conversationHandler,
		InstanceRepo:        repos.Instance,
		RateLimit: middleware.RateLimitOption{
			Enabled:  cfg.RateLimit.Enabled,
			Requests: cfg.RateLimit.Requests,
			Window:   time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			Prefix:   cfg.RateLimit.Prefix,
			Logger:   logr,
			Limiter:  repos.RateLimiter,
		},
		IPRateLimit: middleware.IPRateLimitOption{
			Enabled:        cfg.RateLimit.Enabled,
			Requests:       cfg.RateLimit.Requests,
			WindowSeconds:  cfg.RateLimit.WindowSeconds,
			Limiter:        repos.RateLimiter,
			Logger:         logr,
			SkipPrivateIPs: true,
		},
	})

	application := app.New(cfg, logr, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := application.Run(context.Background()); err != nil {
			logr.Error("servidor finalizado com erro", zap.Error(err))
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logr.Info("sinal de encerramento recebido")
	case err := <-errCh:
		if err != nil {
			logr.Error("encerrando por erro do servidor", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	registry.StopAll()
	stopMachine()
	sweepPool.Stop()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logr.Error("erro no shutdown do servidor", zap.Error(err))
	}

	if repos.RedisClient != nil {
		if err := repos.RedisClient.Close(); err != nil {
			logr.Warn("erro ao fechar redis", zap.Error(err))
		}
	}

	logr.Info("aplicação encerrada")
}

// waStatusAdapter estreita o client WA para o recorte que o poller consome.
type waStatusAdapter struct {
	client *wa.Client
}

func (a waStatusAdapter) Status(ctx context.Context, label string) (*session.StatusResultLite, error) {
	res, err := a.client.Status(ctx, label)
	if err != nil {
		return nil, err
	}
	return &session.StatusResultLite{State: string(res.State)}, nil
}
