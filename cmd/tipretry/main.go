package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lnbroker/config"
	"lnbroker/internal/clockid"
	"lnbroker/internal/hotcache"
	"lnbroker/internal/intent"
	"lnbroker/internal/lnurl"
	"lnbroker/internal/nwc"
	"lnbroker/internal/payout"
	"lnbroker/internal/providerclient"
	"lnbroker/internal/secretbox"
	"lnbroker/internal/tipretry"
	"lnbroker/pkg/logger"
	"lnbroker/pkg/streamqueue"
)

var cfg config.BrokerConfig

// noopClaimer satisfies payout.Claimer for the tip retry worker: a
// tip retry runs against an already-completed intent and must never
// touch the claim lifecycle.
type noopClaimer struct{}

func (noopClaimer) Release(ctx context.Context, paymentHash string, reason string) {}
func (noopClaimer) Complete(ctx context.Context, paymentHash string, summary map[string]string) error {
	return nil
}

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

	redisClient, err := hotcache.NewClient(context.Background(), hotcache.Config{
		Host: cfg.Redis.Host, Port: cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis for tip retry queue: %w", err)
	}

	provider, err := providerclient.NewClient(log, providerclient.Config{
		GRPCHost: cfg.LND.ProductionGRPCHost, GRPCPort: cfg.LND.ProductionGRPCPort,
		TLSCertPath: cfg.LND.ProductionTLSCertPath, MacaroonPath: cfg.LND.ProductionMacaroonPath,
		PaymentTimeoutSeconds: cfg.LND.PaymentTimeoutSeconds, MaxPaymentFeeSats: cfg.LND.MaxPaymentFeeSats,
	}, providerclient.Config{
		GRPCHost: cfg.LND.StagingGRPCHost, GRPCPort: cfg.LND.StagingGRPCPort,
		TLSCertPath: cfg.LND.StagingTLSCertPath, MacaroonPath: cfg.LND.StagingMacaroonPath,
		PaymentTimeoutSeconds: cfg.LND.PaymentTimeoutSeconds, MaxPaymentFeeSats: cfg.LND.MaxPaymentFeeSats,
	})
	if err != nil {
		return fmt.Errorf("failed to dial lnd: %w", err)
	}
	defer provider.Close()

	lnurlResolver := lnurl.New(http.DefaultClient)
	nwcClient := nwc.New(30*time.Second, log)
	cipher := secretbox.MasterCipher{Password: cfg.Secretbox.MasterPassword}

	executor := payout.New(provider, lnurlResolver, nwcClient, cipher, noopClaimer{}, store, nil, clock, log)

	queue := streamqueue.New(redisClient, streamqueue.Config{}, log)
	consumerName := fmt.Sprintf("tip-retry-worker-%d", os.Getpid())
	consumer := tipretry.NewConsumer(queue, store, executor, "tip_retry", "tip_retry_workers", consumerName, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("tip retry consumer stopped", zap.Error(err))
		}
	}()

	log.Info("tip retry worker running", zap.String("consumer", consumerName))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	time.Sleep(3 * time.Second)
	log.Info("tip retry worker shut down gracefully")
	return nil
}
