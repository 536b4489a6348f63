package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMongoDB  = "mongodb"
)

type Config struct {
	Env             string         `yaml:"env" env:"ENV" env-default:"local"`
	RefreshTokenTTL time.Duration  `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	TicketTTL       time.Duration  `yaml:"ticket_ttl" env:"TICKET_TTL" env-default:"24h"`
	Redirect        RedirectConfig `yaml:"redirect"`
	Storage         StorageConfig  `yaml:"storage"`
	HTTP            HTTPConfig     `yaml:"http"`
	Grpc            GRPCConfig     `yaml:"grpc"`
}

// RedirectConfig holds the magic link redirect targets. Without Error,
// failures are reported as HTTP errors instead of redirects.
type RedirectConfig struct {
	Success string `yaml:"success" env:"REDIRECT_URL_SUCCESS" env-required:"true"`
	Error   string `yaml:"error" env:"REDIRECT_URL_ERROR"`
}

type StorageConfig struct {
	Driver      string      `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	Path        string      `yaml:"path" env:"STORAGE_PATH" env-default:"./storage/magiclink.db"`
	PostgresDSN string      `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	Mongo       MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"magiclink"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
}

type GRPCConfig struct {
	Port int `yaml:"port" env:"GRPC_PORT" env-default:"44044"`
}

// LoadConfig loads the configuration or panics.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the YAML file at path, applying environment overrides on top.
// An empty path reads the environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from env: %w", err)
		}
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", StorageSQLite)
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the %s driver", StoragePostgres)
		}
	case StorageMongoDB:
		if c.Storage.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri is required for the %s driver", StorageMongoDB)
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	if c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("refresh_token_ttl must be positive")
	}

	return nil
}
