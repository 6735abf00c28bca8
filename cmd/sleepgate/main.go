package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	analysisadapter "github.com/smallbiznis/valora-sleep/internal/adapter/analysis"
	cacheadapter "github.com/smallbiznis/valora-sleep/internal/adapter/cache"
	oauthadapter "github.com/smallbiznis/valora-sleep/internal/adapter/oauth"
	"github.com/smallbiznis/valora-sleep/internal/adapter/whoop"
	"github.com/smallbiznis/valora-sleep/internal/config"
	httptransport "github.com/smallbiznis/valora-sleep/internal/http"
	"github.com/smallbiznis/valora-sleep/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-sleep/internal/http/middleware"
	"github.com/smallbiznis/valora-sleep/internal/repository"
	"github.com/smallbiznis/valora-sleep/internal/seal"
	"github.com/smallbiznis/valora-sleep/internal/server"
	analysissvc "github.com/smallbiznis/valora-sleep/internal/service/analysis"
	authservice "github.com/smallbiznis/valora-sleep/internal/service/auth"
	sleepsvc "github.com/smallbiznis/valora-sleep/internal/service/sleep"
	"github.com/smallbiznis/valora-sleep/internal/session"
	"github.com/smallbiznis/valora-sleep/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newRedisClient,
			newStateLedger,
			newSealer,
			newSessionManager,
			newProviderClient,
			newDataClient,
			newAnalysisClient,
			analysissvc.NewGateway,
			newOAuthService,
			newSleepService,
			handler.NewAuthHandler,
			handler.NewSleepHandler,
			handler.NewAnalysisHandler,
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

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

// newRedisClient returns nil when REDIS_ADDR is unset; the state ledger then
// falls back to process memory.
func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newStateLedger(client redis.UniversalClient, logger *zap.Logger) repository.StateLedger {
	if client == nil {
		logger.Warn("oauth state ledger is in-memory; run a single replica or set REDIS_ADDR, " +
			"otherwise callbacks landing on another instance fail with invalid state")
		return cacheadapter.NewMemoryStateLedger()
	}
	logger.Info("oauth state ledger: redis")
	return cacheadapter.NewRedisStateLedger(client)
}

func newSealer(cfg config.Config, logger *zap.Logger) *seal.Sealer {
	sealer := seal.NewSealer(cfg.SessionSecret)
	if !sealer.Enabled() {
		logger.Warn("SESSION_SECRET not set; token cookies are stored unsealed")
	}
	return sealer
}

func newSessionManager(cfg config.Config, sealer *seal.Sealer, logger *zap.Logger) *session.Manager {
	return session.NewManager(session.CookieOptions{Path: "/", Secure: cfg.CookieSecure}, sealer, cfg.StateTTL, logger)
}

func newProviderClient(cfg config.Config) oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(cfg.Provider(), nil, cfg.TokenTimeout)
}

func newDataClient(cfg config.Config) whoop.DataClient {
	return whoop.NewHTTPDataClient(cfg.WhoopAPIBaseURL, nil, cfg.FetchTimeout)
}

func newAnalysisClient(cfg config.Config) analysisadapter.Client {
	return analysisadapter.NewHTTPClient(cfg.AnalysisURL, nil, cfg.AnalysisTimeout)
}

func newOAuthService(cfg config.Config, provider oauthadapter.ProviderClient, ledger repository.StateLedger, logger *zap.Logger) authservice.OAuthService {
	return authservice.NewOAuthService(provider, ledger, authservice.Options{
		StateTTL:         cfg.StateTTL,
		PostAuthRedirect: cfg.PostAuthRedirect,
	}, logger)
}

func newSleepService(cfg config.Config, data whoop.DataClient, provider oauthadapter.ProviderClient, logger *zap.Logger) sleepsvc.Service {
	return sleepsvc.NewService(data, provider, cfg.RetryOnUnauthorized, logger)
}

// newRateLimiter returns nil, meaning no throttling, when RATE_LIMIT_RPM <= 0.
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
				logger.Info("http server listening", zap.String("addr", addr))
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
