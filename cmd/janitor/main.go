package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"lnbroker/config"
	"lnbroker/internal/clockid"
	"lnbroker/internal/hotcache"
	"lnbroker/internal/intent"
	"lnbroker/internal/janitor"
	"lnbroker/internal/metrics"
	"lnbroker/pkg/logger"
)

var cfg config.BrokerConfig

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	configPath := config.Path(root).Join("config.toml")
	if err := config.Load(configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Log

	db, err := intent.NewDB(intent.Config{
		Host: cfg.Database.Host, Port: cfg.Database.Port, User: cfg.Database.User,
		Password: cfg.Database.Password, DB: cfg.Database.DB, SslMode: cfg.Database.SslMode,
		MaxConns: cfg.Database.MaxConns, MinConns: cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime, MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to open intent store database: %w", err)
	}
	defer db.Close()

	clock := clockid.SystemClock{}
	store := intent.NewStore(db, clock, cfg.DefaultIntentTTL())

	var cache *hotcache.HotCache
	if cfg.Redis.HotCacheEnable {
		ctx := context.Background()
		redisClient, err := hotcache.NewClient(ctx, hotcache.Config{
			Host: cfg.Redis.Host, Port: cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize hot cache: %w", err)
		}
		cache = hotcache.New(redisClient)
	}

	m := metrics.New()

	j := janitor.New(store, janitorCache(cache), m, clock, janitor.Config{Interval: cfg.JanitorInterval()}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	log.Info("janitor running", zap.Duration("interval", cfg.JanitorInterval()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	<-done
	log.Info("janitor shut down gracefully")
	return nil
}

func janitorCache(c *hotcache.HotCache) janitor.Cache {
	if c == nil {
		return nil
	}
	return c
}
