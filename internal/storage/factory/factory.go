package factory

import (
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/config"
	"github.com/zapline/zapline/internal/pkg/queue"
	queue_memory "github.com/zapline/zapline/internal/pkg/queue/memory"
	queue_redis "github.com/zapline/zapline/internal/pkg/queue/redis"
	"github.com/zapline/zapline/internal/pkg/ratelimiter"
	limiter_memory "github.com/zapline/zapline/internal/pkg/ratelimiter/memory"
	limiter_redis "github.com/zapline/zapline/internal/pkg/ratelimiter/redis"
	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/postgres"
	storage_redis "github.com/zapline/zapline/internal/storage/redis"
	"github.com/zapline/zapline/internal/storage/sqlite"
)

type Repositories struct {
	Credential   storage.CredentialRepository
	Instance     storage.InstanceRepository
	Binding      storage.BindingRepository
	Contact      storage.ContactRepository
	Conversation storage.ConversationRepository
	Message      storage.MessageRepository
	WebhookLog   storage.WebhookLogRepository
	User         storage.UserRepository
	RedisClient  *storage_redis.Client // Pode ser nil se Redis estiver desabilitado
	RetryQueue   queue.Queue
	RateLimiter  ratelimiter.Limiter
}

func NewRepositories(cfg config.Config, log *zap.Logger) (*Repositories, error) {
	log.Info("inicializando repositórios",
		zap.String("driver", cfg.Storage.Driver),
	)

	var (
		retryQueue  queue.Queue
		rateLimiter ratelimiter.Limiter
		storeRedis  *storage_redis.Client
		err         error
	)

	// Inicializa Redis apenas se explicitamente habilitado
	useRedis := cfg.Redis.Enabled

	if useRedis {
		log.Info("inicializando Redis...")
		storeRedis, err = storage_redis.New(cfg.Redis, log)
		if err != nil {
			log.Error("erro ao conectar com Redis", zap.Error(err))
			return nil, err
		}

		redisClient := storeRedis.RDB()
		retryQueue = queue_redis.NewQueue(redisClient, cfg.Relay.QueueKeyPrefix)
		rateLimiter = limiter_redis.NewLimiter(redisClient)
		log.Info("Redis conectado, fila e limiter configurados")
	} else {
		log.Info("usando implementações em memória (Redis desabilitado)")
		retryQueue = queue_memory.NewQueue(10000)
		rateLimiter = limiter_memory.NewLimiter()
		storeRedis = nil
	}

	switch cfg.Storage.Driver {
	case "sqlite", "":
		log.Debug("criando conexão com SQLite")
		db, err := sqlite.New(cfg.Storage.DataDir, log)
		if err != nil {
			log.Error("erro ao conectar com SQLite", zap.Error(err))
			return nil, err
		}

		log.Info("repositórios SQLite criados com sucesso", zap.String("data_dir", cfg.Storage.DataDir))
		return &Repositories{
			Credential:   sqlite.NewCredentialRepository(db),
			Instance:     sqlite.NewInstanceRepository(db),
			Binding:      sqlite.NewBindingRepository(db),
			Contact:      sqlite.NewContactRepository(db),
			Conversation: sqlite.NewConversationRepository(db),
			Message:      sqlite.NewMessageRepository(db),
			WebhookLog:   sqlite.NewWebhookLogRepository(db),
			User:         sqlite.NewUserRepository(db),
			RedisClient:  storeRedis,
			RetryQueue:   retryQueue,
			RateLimiter:  rateLimiter,
		}, nil

	case "postgres":
		log.Debug("criando conexão com PostgreSQL")
		db, err := postgres.New(cfg.DB, log)
		if err != nil {
			log.Error("erro ao conectar com PostgreSQL", zap.Error(err))
			return nil, err
		}

		log.Info("repositórios PostgreSQL criados com sucesso")
		return &Repositories{
			Credential:   postgres.NewCredentialRepository(db),
			Instance:     postgres.NewInstanceRepository(db),
			Binding:      postgres.NewBindingRepository(db),
			Contact:      postgres.NewContactRepository(db),
			Conversation: postgres.NewConversationRepository(db),
			Message:      postgres.NewMessageRepository(db),
			WebhookLog:   postgres.NewWebhookLogRepository(db),
			User:         postgres.NewUserRepository(db),
			RedisClient:  storeRedis,
			RetryQueue:   retryQueue,
			RateLimiter:  rateLimiter,
		}, nil

	default:
		log.Error("driver de storage desconhecido",
			zap.String("driver", cfg.Storage.Driver),
		)
		return nil, &ErrUnknownDriver{Driver: cfg.Storage.Driver}
	}
}

type ErrUnknownDriver struct {
	Driver string
}

func (e *ErrUnknownDriver) Error() string {
	return "storage: driver desconhecido: " + e.Driver
}
