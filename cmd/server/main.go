// @title                       nerdwiki API
// @version                     1.0
// @description                 Authentication and token refresh for the nerdwiki content API.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nerdwiki/nerdwiki-api/internal/api"
	"github.com/nerdwiki/nerdwiki-api/internal/api/handler"
	"github.com/nerdwiki/nerdwiki-api/internal/core/ports"
	"github.com/nerdwiki/nerdwiki-api/internal/core/service"
	"github.com/nerdwiki/nerdwiki-api/internal/infrastructure/config"
	"github.com/nerdwiki/nerdwiki-api/internal/infrastructure/db/memory"
	mongostore "github.com/nerdwiki/nerdwiki-api/internal/infrastructure/db/mongo"
	redisstore "github.com/nerdwiki/nerdwiki-api/internal/infrastructure/db/redis"
	"github.com/nerdwiki/nerdwiki-api/internal/infrastructure/http/handlers"
	"github.com/nerdwiki/nerdwiki-api/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "nerdwiki-api: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "nerdwiki-api",
	})

	issuer, err := service.NewTokenIssuer(service.TokenConfig{
		Key:       cfg.JWT.Key,
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		AccessTTL: cfg.JWT.AccessTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.close()

	authService := service.NewAuthService(
		stores.users,
		stores.tokens,
		issuer,
		service.NewBcryptHasher(cfg.BcryptCost),
		log,
		service.WithRefreshTTL(cfg.JWT.RefreshTokenTTL),
	)
	roleService := service.NewRoleService(stores.users, log)
	if err := roleService.EnsureAdmins(ctx, cfg.AdminUsernames); err != nil {
		return fmt.Errorf("bootstrap admins: %w", err)
	}

	e := api.NewRouter(api.Dependencies{
		Auth:     authService,
		Roles:    roleService,
		Verifier: issuer,
		Cookie:   handler.CookieOptions{Secure: cfg.Cookie.Secure},
		Checks:   stores.checks,
		Log:      log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

type stores struct {
	users   ports.CredentialStore
	tokens  ports.RefreshTokenStore
	checks  map[string]handlers.Pinger
	closers []func(context.Context) error
}

func (s *stores) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, c := range s.closers {
		_ = c(ctx)
	}
}

// openStores connects the backends selected by configuration and ensures
// their indexes.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	s := &stores{checks: map[string]handlers.Pinger{}}

	if cfg.UsesMongo() {
		client, db, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  "nerdwiki-api",
			Timeout:  cfg.Mongo.Timeout,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Disconnect)
		s.checks["mongodb"] = mongostore.NewPinger(db)

		if cfg.CredentialStore == "mongo" {
			users := mongostore.NewCredentialStore(db)
			if err := users.EnsureIndexes(ctx); err != nil {
				s.close()
				return nil, err
			}
			s.users = users
		}
		if cfg.RefreshTokenStore == "mongo" {
			tokens := mongostore.NewRefreshTokenStore(db)
			if err := tokens.EnsureIndexes(ctx); err != nil {
				s.close()
				return nil, err
			}
			s.tokens = tokens
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("mongodb connected")
	}

	if cfg.UsesRedis() {
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		s.checks["redis"] = redisstore.NewPinger(client)
		s.tokens = redisstore.NewRefreshTokenStore(client)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}

	if s.users == nil {
		log.Warn().Msg("using in-memory credential store")
		s.users = memory.NewCredentialStore()
	}
	if s.tokens == nil {
		log.Warn().Msg("using in-memory refresh token store")
		s.tokens = memory.NewRefreshTokenStore()
	}
	return s, nil
}
