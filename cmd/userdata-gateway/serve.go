package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"userdata-gateway/api"
	"userdata-gateway/config"
	"userdata-gateway/logging"
	"userdata-gateway/middleware/identity"
	"userdata-gateway/middleware/ratelimit"
	"userdata-gateway/middleware/ratelimit/domain"
	"userdata-gateway/middleware/ratelimit/infra"
	"userdata-gateway/userdata/application"
	userinfra "userdata-gateway/userdata/infra"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Sobe o servidor HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, logger)
		},
	}
}

// app junta o que o processo precisa liberar ao sair.
type app struct {
	handler http.Handler
	stats   *infra.MemoryStatsStore
	// redisStats só é lido no resumo de saída; os contadores são compartilhados entre réplicas.
	redisStats *infra.RedisStatsStore
	closers    []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close resources", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening", zap.String("addr", cfg.Server.Addr))
	logger.Info("throttle",
		zap.Bool("enabled", cfg.Throttle.Enabled),
		zap.String("backend", cfg.Throttle.Backend),
		zap.Duration("window", cfg.Throttle.Window),
		zap.Int64("threshold", cfg.Throttle.Threshold),
		zap.Duration("delay_step", cfg.Throttle.DelayStep),
		zap.Duration("max_delay", cfg.Throttle.MaxDelay),
		zap.Int64("hard_cap", cfg.Throttle.HardCap))
	logger.Info("store", zap.String("driver", cfg.Store.Driver), zap.Bool("auto_provision", cfg.Identity.AutoProvision))
	logger.Info("concurrency", zap.Int("max", cfg.Concurrency.Max), zap.Duration("acquire_timeout", cfg.Concurrency.AcquireTimeout))

	err = srv.ListenAndServe()
	if a.stats != nil {
		logStatsSummary(logger, a.stats)
	}
	if a.redisStats != nil {
		logRedisStatsSummary(logger, a.redisStats, cfg.Server.ShutdownTimeout)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// build monta stores, throttle e rotas a partir da configuração.
func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("redis ping error: %w", err)
		}
	}

	var userRedis redis.UniversalClient
	if rdb != nil {
		userRedis = rdb
	}
	store, closer, err := userinfra.Open(ctx, cfg.Store, userRedis)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closer)

	var throttle *ratelimit.Options
	if cfg.Throttle.Enabled {
		policy := domain.Policy{
			Window:    cfg.Throttle.Window,
			Threshold: cfg.Throttle.Threshold,
			DelayStep: cfg.Throttle.DelayStep,
			MaxDelay:  cfg.Throttle.MaxDelay,
			HardCap:   cfg.Throttle.HardCap,
		}
		throttle = &ratelimit.Options{
			Store:               windowStore(ctx, cfg.Throttle, rdb),
			Policy:              policy,
			Stats:               statsStore(cfg.Stats, rdb, a),
			KeyHeader:           cfg.Throttle.KeyHeader,
			TrustXForwardedFor:  cfg.Throttle.TrustXFF,
			AddRateLimitHeaders: cfg.Throttle.AddHeaders,
			Logger:              logger.Named("throttle"),
		}
	}

	a.handler = api.NewRouter(api.Deps{
		Handlers: api.Handlers{
			Users:        application.Router{Store: store, AutoProvision: cfg.Identity.AutoProvision},
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			StoreTimeout: cfg.Store.Timeout,
			Logger:       logger.Named("api"),
		},
		Throttle: throttle,
		Concurrency: ratelimit.ConcurrencyOptions{
			Max:            cfg.Concurrency.Max,
			AcquireTimeout: cfg.Concurrency.AcquireTimeout,
			Logger:         logger.Named("concurrency"),
		},
		Identity: identity.HeaderResolver{Header: cfg.Identity.Header},
		Logger:   logger,
	})
	return a, nil
}

func windowStore(ctx context.Context, cfg config.ThrottleConfig, rdb *redis.Client) domain.WindowStore {
	if cfg.Backend == "redis" {
		return infra.NewRedisWindowStore(rdb, cfg.Window, infra.WithWindowPrefix(cfg.RedisPrefix))
	}
	s := infra.NewWindowStore(cfg.Window,
		infra.WithMaxKeys(cfg.MaxKeys),
		infra.WithSweepEvery(cfg.SweepEvery))
	s.StartJanitor(ctx)
	return s
}

func statsStore(cfg config.StatsConfig, rdb *redis.Client, a *app) domain.StatsStore {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Backend == "redis" {
		a.redisStats = infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.Prefix),
			infra.WithStatsTTL(cfg.TTL),
			infra.WithStatsBucket(cfg.Bucket),
			infra.WithStatsTrackKeys(cfg.TrackKeys))
		return a.redisStats
	}
	a.stats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.TrackKeys))
	return a.stats
}

func logStatsSummary(logger *zap.Logger, stats *infra.MemoryStatsStore) {
	total := stats.Total()
	logger.Info("throttle summary",
		zap.Int64("allowed", total.Allowed),
		zap.Int64("delayed", total.Delayed),
		zap.Int64("denied", total.Denied))
	for route, c := range stats.ByRoute() {
		logger.Info("throttle summary by route",
			zap.String("route", route),
			zap.Int64("allowed", c.Allowed),
			zap.Int64("delayed", c.Delayed),
			zap.Int64("denied", c.Denied))
	}
}

func logRedisStatsSummary(logger *zap.Logger, stats *infra.RedisStatsStore, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	total, delay, err := stats.Total(ctx)
	if err != nil {
		logger.Warn("read throttle summary", zap.Error(err))
		return
	}
	logger.Info("throttle summary (all replicas)",
		zap.Int64("allowed", total.Allowed),
		zap.Int64("delayed", total.Delayed),
		zap.Int64("denied", total.Denied),
		zap.Duration("delay_total", delay))
}
