package config

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v10"
)

const Version = "0.1.0"

type Config struct {
	App       AppConfig
	DB        DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	CRM       CRMConfig
	WA        WAConfig
	Polling   PollingConfig
	Relay     RelayConfig
}

type StorageConfig struct {
	Driver  string `env:"DB_DRIVER" envDefault:"sqlite"`
	DataDir string `env:"DATA_DIR" envDefault:"/app/data"`
}

type AppConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

func (cfg DatabaseConfig) DSN() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
}

type RateLimitConfig struct {
	Enabled       bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Requests      int    `env:"RATE_LIMIT_REQUESTS" envDefault:"300"`
	WindowSeconds int    `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	Prefix        string `env:"RATE_LIMIT_PREFIX" envDefault:"ratelimit:api"`
}

type JWTConfig struct {
	Secret   string `env:"JWT_SECRET,required"`
	ExpHours int    `env:"JWT_EXP_HOURS" envDefault:"24"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"debug"`
}

type CRMConfig struct {
	TokenURL      string `env:"CRM_TOKEN_URL,required"`
	ClientID      string `env:"CRM_CLIENT_ID,required"`
	ClientSecret  string `env:"CRM_CLIENT_SECRET,required"`
	ConnectorCode string `env:"CRM_CONNECTOR_CODE" envDefault:"zapline"`
	ConnectorName string `env:"CRM_CONNECTOR_NAME" envDefault:"ZapLine WhatsApp"`
	// Chave usada para cifrar refresh tokens em repouso.
	CredentialKeyEnc string `env:"CRM_CREDENTIAL_KEY_ENC" envDefault:"zapline-credential-key-change-in-production"`
	TimeoutSeconds   int    `env:"CRM_TIMEOUT_SECONDS" envDefault:"15"`
}

type WAConfig struct {
	BaseURL        string `env:"WA_BASE_URL,required"`
	AdminToken     string `env:"WA_ADMIN_TOKEN" envDefault:""`
	TimeoutSeconds int    `env:"WA_TIMEOUT_SECONDS" envDefault:"15"`
}

type PollingConfig struct {
	IntervalSeconds int `env:"POLL_INTERVAL_SECONDS" envDefault:"3"`
	MaxSeconds      int `env:"POLL_MAX_SECONDS" envDefault:"120"`
}

type RelayConfig struct {
	MaxAttempts    int `env:"RELAY_MAX_ATTEMPTS" envDefault:"3"`
	BaseBackoffMS  int `env:"RELAY_BASE_BACKOFF_MS" envDefault:"500"`
	SweepWorkers   int `env:"RELAY_SWEEP_WORKERS" envDefault:"4"`
	QueueKeyPrefix string `env:"RELAY_QUEUE_PREFIX" envDefault:"relay:retry"`
}

func Load() Config {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: não foi possível carregar variáveis: %v", err)
	}
	return cfg
}
