package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
)

type Config struct {
	Port          string `env:"PORT" env-default:"8080"`
	Env           string `env:"APP_ENV" env-default:"development"`
	LogLevel      string `env:"LOG_LEVEL" env-default:"info"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" env-default:"http://localhost:3000"`

	Storage  string `env:"STORAGE" env-default:"memory"`
	Mongo    Mongo
	Postgres Postgres
	Redis    Redis

	JWTSecret string `env:"JWT_SECRET"`

	Chat Chat
}

type Mongo struct {
	URI      string `env:"MONGODB_URI" env-default:"mongodb://localhost:27017"`
	Database string `env:"MONGODB_DATABASE" env-default:"directmsg"`
}

type Postgres struct {
	DSN string `env:"POSTGRES_DSN"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	ServerID string `env:"SERVER_ID" env-default:"server-1"`
}

type Chat struct {
	MaxContentLength  int           `env:"MAX_CONTENT_LENGTH" env-default:"2000"`
	SendRatePerSecond float64       `env:"SEND_RATE_PER_SECOND" env-default:"5"`
	SendBurst         int           `env:"SEND_BURST" env-default:"10"`
	ProfileCacheTTL   time.Duration `env:"PROFILE_CACHE_TTL" env-default:"5m"`
	SendBuffer        int           `env:"SEND_BUFFER" env-default:"256"`
}

// Load reads an optional .env file and binds the environment onto Config.
// The returned bool reports whether a .env file was found.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, dotenv, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, dotenv, err
	}
	return &cfg, dotenv, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageMongo:
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: POSTGRES_DSN is required for postgres storage")
		}
	default:
		return fmt.Errorf("config: unknown storage %q", c.Storage)
	}
	if c.Chat.MaxContentLength <= 0 {
		return fmt.Errorf("config: MAX_CONTENT_LENGTH must be positive")
	}
	if c.Chat.SendBuffer <= 0 {
		return fmt.Errorf("config: SEND_BUFFER must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
