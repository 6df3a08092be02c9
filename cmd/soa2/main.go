// Command soa2 runs the ScratchOAuth2 server: comment-code account
// verification plus an OAuth2 authorization-code provider for Scratch
// accounts.
package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/adapter/cache"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/adapter/scratch"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/config"
	soa2http "github.com/ScratchVerifier/ScratchOAuth2/internal/http"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/http/handler"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/repository"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/server"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/service"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/telemetry"
)

func main() {
	fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			newTelemetry,
			newTracer,
			newPGXPool,
			newRedisClient,

			newAppRepository,
			newAuthingRepository,
			newTokenRepository,
			newScratcherRepository,
			newSessionStore,
			newScratchClient,

			service.NewAppService,
			service.NewLoginService,
			service.NewAuthService,

			handler.NewAppHandler,
			handler.NewLoginHandler,
			handler.NewAuthorizeHandler,
			handler.NewTokenHandler,
			handler.NewUserHandler,
			handler.NewApprovalsHandler,
			handler.NewHealthHandler,

			newRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(registerLifecycle),
	).Run()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config) (*telemetry.Provider, error) {
	provider, err := telemetry.Setup(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: provider.Shutdown,
	})
	return provider, nil
}

func newTracer(provider *telemetry.Provider, cfg config.Config) trace.Tracer {
	return provider.Tracer(cfg)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	lc.Append(fx.Hook{
		OnStart: pool.Ping,
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) redis.UniversalClient {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func newAppRepository(pool *pgxpool.Pool) repository.AppRepository {
	return repository.NewPostgresAppRepo(pool)
}

func newAuthingRepository(pool *pgxpool.Pool) repository.AuthingRepository {
	return repository.NewPostgresAuthingRepo(pool)
}

func newTokenRepository(pool *pgxpool.Pool) repository.TokenRepository {
	return repository.NewPostgresTokenRepo(pool)
}

func newScratcherRepository(pool *pgxpool.Pool) repository.ScratcherRepository {
	return repository.NewPostgresScratcherRepo(pool)
}

func newSessionStore(client redis.UniversalClient) repository.SessionStore {
	return cache.NewRedisSessionStore(client)
}

func newScratchClient(cfg config.Config) scratch.Client {
	return scratch.NewSiteClient(&http.Client{Timeout: cfg.UpstreamTimeout}, cfg.ScratchAPIBase, cfg.ScratchSiteBase)
}

func newRouter(
	cfg config.Config,
	logger *zap.Logger,
	sessions repository.SessionStore,
	apps *handler.AppHandler,
	login *handler.LoginHandler,
	authorize *handler.AuthorizeHandler,
	tokens *handler.TokenHandler,
	user *handler.UserHandler,
	approvals *handler.ApprovalsHandler,
	health *handler.HealthHandler,
) *gin.Engine {
	return soa2http.NewRouter(soa2http.RouterParams{
		Config:    cfg,
		Logger:    logger,
		Sessions:  sessions,
		Apps:      apps,
		Login:     login,
		Authorize: authorize,
		Tokens:    tokens,
		User:      user,
		Approvals: approvals,
		Health:    health,
	})
}

func registerLifecycle(lc fx.Lifecycle, srv *server.HTTPServer) {
	serveCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				done <- srv.Start(serveCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return srv.Shutdown(ctx)
			}
		},
	})
}
