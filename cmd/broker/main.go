package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/poke08888/tiktok-ads-dashboard/internal/config"
	httptransport "github.com/poke08888/tiktok-ads-dashboard/internal/http"
	"github.com/poke08888/tiktok-ads-dashboard/internal/http/handler"
	httpmiddleware "github.com/poke08888/tiktok-ads-dashboard/internal/http/middleware"
	"github.com/poke08888/tiktok-ads-dashboard/internal/lifecycle"
	"github.com/poke08888/tiktok-ads-dashboard/internal/platform"
	"github.com/poke08888/tiktok-ads-dashboard/internal/proxy"
	"github.com/poke08888/tiktok-ads-dashboard/internal/repository"
	"github.com/poke08888/tiktok-ads-dashboard/internal/secret"
	"github.com/poke08888/tiktok-ads-dashboard/internal/server"
	"github.com/poke08888/tiktok-ads-dashboard/internal/service"
	"github.com/poke08888/tiktok-ads-dashboard/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newCipher,
			newCredentialStore,
			newAttemptStore,
			newUpstreamClient,
			newRegistry,
			newLifecycleManager,
			newFlowService,
			newDispatcher,
			newAuthHandler,
			handler.NewProxyHandler,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newCipher(cfg config.Config) *secret.Cipher {
	return secret.NewCipher(cfg.EncryptionKey)
}

func newCredentialStore(pool *pgxpool.Pool, cipher *secret.Cipher, logger *zap.Logger) repository.CredentialStore {
	return repository.NewPostgresCredentialStore(pool, cipher, logger)
}

func newAttemptStore(pool *pgxpool.Pool, cfg config.Config) repository.AttemptStore {
	return repository.NewPostgresAttemptStore(pool, cfg.AttemptTTL)
}

func newUpstreamClient(cfg config.Config) *http.Client {
	return &http.Client{Timeout: cfg.UpstreamTimeout}
}

func newRegistry(cfg config.Config, client *http.Client, logger *zap.Logger) platform.Registry {
	registry := platform.Registry{}
	if cfg.Shopee.Enabled {
		adapter := platform.NewShopee(cfg.Shopee, client, logger)
		registry[adapter.Name()] = adapter
	}
	if cfg.TikTok.Enabled {
		adapter := platform.NewTikTok(cfg.TikTok, client, logger)
		registry[adapter.Name()] = adapter
	}
	return registry
}

func newLifecycleManager(registry platform.Registry, creds repository.CredentialStore, cfg config.Config, logger *zap.Logger) *lifecycle.Manager {
	refreshers := make(map[string]lifecycle.Refresher, len(registry))
	for name, adapter := range registry {
		refreshers[name] = adapter
	}
	return lifecycle.NewManager(creds, refreshers, cfg.RefreshThreshold, logger)
}

func newFlowService(registry platform.Registry, creds repository.CredentialStore, attempts repository.AttemptStore, manager *lifecycle.Manager, logger *zap.Logger) *service.FlowService {
	return service.NewFlowService(registry, creds, attempts, manager, logger)
}

func newDispatcher(registry platform.Registry, manager *lifecycle.Manager, client *http.Client, logger *zap.Logger) *proxy.Dispatcher {
	return proxy.NewDispatcher(registry, manager, client, logger)
}

func newAuthHandler(flow *service.FlowService, cfg config.Config) *handler.AuthHandler {
	return handler.NewAuthHandler(flow, cfg.AppURL)
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
