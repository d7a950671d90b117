// lugnd serves the admission-control and resilience layer: tiered rate
// limiting backed by Redis, per-dependency circuit breakers and the
// error recovery coordinator, exposed over one HTTP listener.
//
// Usage:
//
//	lugnd [options]
//
// Options:
//
//	-c, --config     configuration file path (.yaml, .yml or .json)
//	-l, --listen     listen address, overrides the configuration
//	-r, --redis      Redis address, overrides the configuration
//	    --log-level  log level (debug/info/warn/error)
//
// Exit codes:
//
//	0: clean shutdown
//	1: startup or runtime failure
//	2: invalid arguments or configuration
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/omar1u7777/Lugn-Trygg-sub001/internal/config"
	"github.com/omar1u7777/Lugn-Trygg-sub001/internal/logging"
	"github.com/omar1u7777/Lugn-Trygg-sub001/internal/server"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/breaker"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/ratelimit"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/recovery"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/tier"
)

const shutdownGrace = 10 * time.Second

// Version information, injectable via -ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "lugnd",
		Usage:   "admission control and resilience daemon",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file path",
			},
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "listen address, overrides the configuration",
			},
			&cli.StringFlag{
				Name:    "redis",
				Aliases: []string{"r"},
				Usage:   "Redis address, overrides the configuration",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug/info/warn/error)",
			},
		},
		Action: serve,
	}
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, os.Args); err != nil {
		if errors.Is(err, config.ErrInvalid) || errors.Is(err, config.ErrUnsupportedFormat) {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			return 2
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if addr := cmd.String("listen"); addr != "" {
		cfg.Listen = addr
	}
	if addr := cmd.String("redis"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logOpts := []logging.Option{
		logging.WithLevel(logging.ParseLevel(cfg.Logging.Level)),
		logging.WithFormat(logging.ParseFormat(cfg.Logging.Format)),
	}
	if cfg.Logging.File != "" {
		logOpts = append(logOpts, logging.WithRotatingFile(cfg.Logging.File, 100, 5, 30))
	}
	logger, _ := logging.New(logOpts...)
	slog.SetDefault(logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// The gate fails open without Redis, so an unreachable store
		// delays enforcement rather than blocking startup.
		logger.Warn("redis unreachable at startup, admitting without enforcement",
			slog.String("addr", cfg.Redis.Addr),
			slog.String("error", err.Error()))
	}
	cancel()

	gate, err := buildGate(cfg, rdb, logger)
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg, rdb, logger)
	if err != nil {
		return err
	}

	coord := recovery.New(
		recovery.WithLogger(logger),
		recovery.WithMaxRetries(cfg.Recovery.MaxRetries),
		recovery.WithBaseDelay(cfg.Recovery.BaseDelay),
		recovery.WithHistoryLimit(cfg.Recovery.HistoryLimit),
		recovery.WithRetention(cfg.Recovery.Retention),
		recovery.WithAlertThresholds(cfg.Recovery.AlertThresholds),
		recovery.WithProbe(func(ctx context.Context, _ string) error {
			return rdb.Ping(ctx).Err()
		}),
	)
	coord.RegisterBreaker("redis", registry.Get("redis"))

	monitor := recovery.NewMonitor(coord)
	if err := monitor.Start(); err != nil {
		return err
	}

	srv := server.New(cfg.Listen, gate, registry, coord, server.WithLogger(logger))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		monitor.Stop()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Warn("server drain incomplete", slog.String("error", err.Error()))
	}
	monitor.Stop()
	return nil
}

func buildGate(cfg *config.Config, rdb redis.UniversalClient, logger *slog.Logger) (*ratelimit.Gate, error) {
	policies, err := ratelimit.NewResolver(
		cfg.RateLimit.Categories, cfg.RateLimit.DefaultLimit, cfg.RateLimit.Smooth)
	if err != nil {
		return nil, err
	}
	store, err := ratelimit.NewRedisStore(rdb)
	if err != nil {
		return nil, err
	}
	sampler, err := ratelimit.NewRedisSampler(rdb, cfg.RateLimit.KeyPrefix)
	if err != nil {
		return nil, err
	}

	opts := []ratelimit.Option{
		ratelimit.WithLogger(logger),
		ratelimit.WithResolver(policies),
		ratelimit.WithTierResolver(tier.NewResolver(tier.StaticDirectory{}, tier.WithLogger(logger))),
		ratelimit.WithSampler(sampler),
		ratelimit.WithLowTrafficThreshold(cfg.RateLimit.LowTrafficThreshold),
		ratelimit.WithAdaptiveBoost(cfg.RateLimit.AdaptiveBoost),
		ratelimit.WithKeyPrefix(cfg.RateLimit.KeyPrefix),
	}
	if len(cfg.RateLimit.Smooth) > 0 {
		smooth, err := ratelimit.NewSmoothStore(rdb)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ratelimit.WithSmoothStore(smooth))
	}
	return ratelimit.NewGate(store, opts...)
}

func buildRegistry(cfg *config.Config, rdb redis.UniversalClient, logger *slog.Logger) (*breaker.Registry, error) {
	opts := []breaker.RegistryOption{
		breaker.WithRegistryLogger(logger),
		breaker.WithDefaults(
			breaker.WithFailureThreshold(cfg.Breakers.FailureThreshold),
			breaker.WithRecoveryTimeout(cfg.Breakers.RecoveryTimeout),
		),
	}
	for name, override := range cfg.Breakers.Overrides {
		var perName []breaker.Option
		if override.FailureThreshold > 0 {
			perName = append(perName, breaker.WithFailureThreshold(override.FailureThreshold))
		}
		if override.RecoveryTimeout > 0 {
			perName = append(perName, breaker.WithRecoveryTimeout(override.RecoveryTimeout))
		}
		opts = append(opts, breaker.WithBreakerOptions(name, perName...))
	}
	if cfg.Breakers.PublishState {
		store, err := breaker.NewRedisStateStore(rdb, cfg.RateLimit.KeyPrefix)
		if err != nil {
			return nil, err
		}
		opts = append(opts, breaker.WithStateStore(store))
	}
	return breaker.NewRegistry(opts...), nil
}
