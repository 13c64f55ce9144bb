package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type HTTPConfig struct {
	Addr        string
	CORSOrigins string
}

type GRPCConfig struct {
	Addr string
}

// StoreConfig selects and configures the comment store backend.
// An empty Backend is resolved from the DSNs that are present.
type StoreConfig struct {
	Backend           string
	DatabaseURL       string
	MigrateOnStart    bool
	MongoURI          string
	MongoDatabase     string
	MongoTransactions bool
}

type NATSConfig struct {
	URL string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	Env         string
	HTTP        HTTPConfig
	GRPC        GRPCConfig
	Store       StoreConfig
	NATS        NATSConfig
}

func (c AppConfig) IsProd() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real env vars win over it.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		ServiceName: env("SERVICE_NAME"),
		LogLevel:    env("LOG_LEVEL"),
		Env:         env("APP_ENV"),
		HTTP: HTTPConfig{
			Addr:        env("HTTP_ADDR"),
			CORSOrigins: env("CORS_ALLOWED_ORIGINS"),
		},
		GRPC: GRPCConfig{
			Addr: env("GRPC_ADDR"),
		},
		Store: StoreConfig{
			Backend:           strings.ToLower(env("STORE_BACKEND")),
			DatabaseURL:       env("DATABASE_URL"),
			MigrateOnStart:    envBool("MIGRATE_ON_START", true),
			MongoURI:          env("MONGO_URI"),
			MongoDatabase:     env("MONGO_DATABASE"),
			MongoTransactions: envBool("MONGO_TRANSACTIONS", false),
		},
		NATS: NATSConfig{
			URL: env("NATS_URL"),
		},
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "comments"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = ":9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Store.MongoDatabase == "" {
		cfg.Store.MongoDatabase = "comments"
	}

	if cfg.Store.Backend == "" {
		switch {
		case cfg.Store.DatabaseURL != "":
			cfg.Store.Backend = BackendPostgres
		case cfg.Store.MongoURI != "":
			cfg.Store.Backend = BackendMongo
		default:
			cfg.Store.Backend = BackendMemory
		}
	}

	switch cfg.Store.Backend {
	case BackendMemory:
		if cfg.IsProd() {
			return AppConfig{}, errors.New("in-memory store is not allowed in production")
		}
	case BackendPostgres:
		if cfg.Store.DatabaseURL == "" {
			return AppConfig{}, errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendMongo:
		if cfg.Store.MongoURI == "" {
			return AppConfig{}, errors.New("MONGO_URI is required for the mongo backend")
		}
	default:
		return AppConfig{}, errors.New("unknown STORE_BACKEND " + strconv.Quote(cfg.Store.Backend))
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envBool(key string, fallback bool) bool {
	v := env(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
