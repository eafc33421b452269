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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lnbroker/config"
	"lnbroker/internal/claim"
	"lnbroker/internal/clockid"
	"lnbroker/internal/forwarding"
	"lnbroker/internal/hotcache"
	"lnbroker/internal/ingress"
	"lnbroker/internal/intent"
	"lnbroker/internal/invoiceapi"
	"lnbroker/internal/lnurl"
	"lnbroker/internal/metrics"
	"lnbroker/internal/nwc"
	"lnbroker/internal/payout"
	"lnbroker/internal/providerclient"
	"lnbroker/internal/secretbox"
	"lnbroker/internal/tipretry"
	"lnbroker/pkg/logger"
	"lnbroker/pkg/streamqueue"
)

var cfg config.BrokerConfig

const tipRetryStream = "tip_retry"

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

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run intent store migrations: %w", err)
	}

	clock := clockid.SystemClock{}
	store := intent.NewStore(db, clock, cfg.DefaultIntentTTL())

	var cache *hotcache.HotCache
	var redisClient *redis.Client
	if cfg.Redis.HotCacheEnable {
		ctx := context.Background()
		redisClient, err = hotcache.NewClient(ctx, hotcache.Config{
			Host: cfg.Redis.Host, Port: cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize hot cache: %w", err)
		}
		cache = hotcache.New(redisClient)
	}

	m := metrics.New()

	claimer := claim.New(store, claimerCache(cache), m)

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

	events := store
	executor := payout.New(provider, lnurlResolver, nwcClient, cipher, claimer, events, m, clock, log)

	invoiceCfg := invoiceapi.Config{MaxTipRecipients: cfg.Intent.MaxTipRecipients, ActiveTTL: cfg.DefaultIntentTTL()}
	api := invoiceapi.New(brokerInvoiceAdapter{provider}, store, invoiceapiCache(cache), cipher, invoiceCfg, log)

	executorWithTipRetry := &tipRetryExecutor{executor: executor}
	if redisClient != nil {
		queue := streamqueue.New(redisClient, streamqueue.Config{}, log)
		executorWithTipRetry.publisher = tipretry.NewPublisher(queue, tipRetryStream, log)
	}

	deps := ingress.Deps{
		Claimer:    claimer,
		Executor:   executorWithTipRetry,
		InvoiceAPI: api,
		WebhookSecrets: []string{
			cfg.Webhook.ProductionSecret,
			cfg.Webhook.StagingSecret,
		},
		Registry: m.Registry,
		Logger:   log,
	}
	router := ingress.NewRouter(deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.PollStats(ctx, store, 24*time.Hour, 30*time.Second, log)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go func() {
		log.Info("lnbroker server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during http server shutdown", zap.Error(err))
	}

	log.Info("lnbroker server shut down gracefully")
	return nil
}

// brokerInvoiceAdapter adapts providerclient.Client's payout.Invoice
// return type to invoiceapi.ProviderClient's own Invoice type.
type brokerInvoiceAdapter struct {
	client *providerclient.Client
}

func (a brokerInvoiceAdapter) CreateBrokerInvoice(ctx context.Context, env intent.Environment, amountSat int64, memo string) (invoiceapi.Invoice, error) {
	inv, err := a.client.CreateBrokerInvoice(ctx, env, amountSat, memo)
	if err != nil {
		return invoiceapi.Invoice{}, err
	}
	return invoiceapi.Invoice{PaymentHash: inv.PaymentHash, Bolt11: inv.Bolt11}, nil
}

// tipRetryExecutor wraps payout.Executor so a failed, non-skipped tip
// leg is published for background retry after Execute returns, without
// ingress needing to know the tip retry queue exists.
type tipRetryExecutor struct {
	executor  *payout.Executor
	publisher *tipretry.Publisher
}

func (e *tipRetryExecutor) Execute(ctx context.Context, in *intent.PaymentIntent, plan forwarding.PayoutPlan) payout.PlanOutcome {
	outcome := e.executor.Execute(ctx, in, plan)
	if e.publisher != nil && outcome.Base.OK {
		e.publisher.PublishFailedLegs(ctx, in.PaymentHash, outcome)
	}
	return outcome
}

// claimerCache adapts a possibly-nil *hotcache.HotCache to
// claim.Cache, so claim.New still works with a nil cache when
// hot_cache is disabled.
func claimerCache(c *hotcache.HotCache) claim.Cache {
	if c == nil {
		return nil
	}
	return c
}

// invoiceapiCache adapts a possibly-nil *hotcache.HotCache to
// invoiceapi.Cache.
func invoiceapiCache(c *hotcache.HotCache) invoiceapi.Cache {
	if c == nil {
		return nil
	}
	return c
}
