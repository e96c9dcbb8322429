package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development" validate:"oneof=development staging production test"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	CredentialStore   string `env:"CREDENTIAL_STORE,    default=mongo" validate:"oneof=mongo memory"`
	RefreshTokenStore string `env:"REFRESH_TOKEN_STORE, default=mongo" validate:"oneof=mongo redis memory"`

	// AdminUsernames are promoted to the Admin role at startup.
	AdminUsernames []string `env:"ADMIN_USERNAMES"`
	BcryptCost     int      `env:"BCRYPT_COST, default=10" validate:"min=4,max=31"`

	JWT    JWTConfig
	Cookie CookieConfig
	Mongo  MongoConfig
	Redis  RedisConfig
}

type JWTConfig struct {
	Key             string        `env:"JWT_KEY, required"      validate:"min=32"`
	Issuer          string        `env:"JWT_ISSUER, required"   validate:"required"`
	Audience        string        `env:"JWT_AUDIENCE, required" validate:"required"`
	AccessTokenTTL  time.Duration `env:"JWT_ACCESS_TOKEN_TTL,  default=10m"  validate:"gt=0"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_TOKEN_TTL, default=168h" validate:"gt=0"`
}

type CookieConfig struct {
	Secure bool `env:"COOKIE_SECURE, default=true"`
}

type MongoConfig struct {
	URI      string        `env:"MONGO_URI,     default=mongodb://localhost:27017"`
	Database string        `env:"MONGO_DB,      default=nerdwiki"`
	Timeout  time.Duration `env:"MONGO_TIMEOUT, default=10s"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration from l and validates it.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// UsesMongo reports whether any store is backed by MongoDB.
func (c *Config) UsesMongo() bool {
	return c.CredentialStore == "mongo" || c.RefreshTokenStore == "mongo"
}

func (c *Config) UsesRedis() bool {
	return c.RefreshTokenStore == "redis"
}
