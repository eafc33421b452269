package config

import "time"

// BrokerConfig is the root configuration loaded from config.toml and
// environment overrides. Each cmd entry point builds the narrower
// per-package configs from this struct field by field rather than
// threading the whole thing through every constructor.
type BrokerConfig struct {
	Database struct {
		Host            string `toml:"host" env:"LNBROKER_DB_HOST"`
		Port            string `toml:"port" env:"LNBROKER_DB_PORT" env-default:"5432"`
		User            string `toml:"user" env:"LNBROKER_DB_USER"`
		Password        string `toml:"password" env:"LNBROKER_DB_PASSWORD"`
		DB              string `toml:"db" env:"LNBROKER_DB_NAME"`
		SslMode         string `toml:"ssl_mode" env:"LNBROKER_DB_SSL_MODE" env-default:"disable"`
		MaxConns        int    `toml:"max_conns" env:"LNBROKER_DB_MAX_CONNS" env-default:"25"`
		MinConns        int    `toml:"min_conns" env:"LNBROKER_DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetime int    `toml:"max_conn_lifetime" env:"LNBROKER_DB_MAX_CONN_LIFETIME" env-default:"5"`
		MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"LNBROKER_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
	} `toml:"database"`

	Redis struct {
		Host           string `toml:"host" env:"LNBROKER_REDIS_HOST"`
		Port           string `toml:"port" env:"LNBROKER_REDIS_PORT" env-default:"6379"`
		Password       string `toml:"password" env:"LNBROKER_REDIS_PASSWORD"`
		DB             int    `toml:"db" env:"LNBROKER_REDIS_DB" env-default:"0"`
		HotCacheEnable bool   `toml:"hot_cache_enabled" env:"LNBROKER_HOT_CACHE_ENABLED" env-default:"true"`
	} `toml:"redis"`

	Intent struct {
		DefaultTTLMinutes    int `toml:"default_intent_ttl_minutes" env:"LNBROKER_DEFAULT_INTENT_TTL_MINUTES" env-default:"15"`
		ProcessingTTLMinutes int `toml:"processing_ttl_minutes" env:"LNBROKER_PROCESSING_TTL_MINUTES" env-default:"30"`
		MaxTipRecipients     int `toml:"max_tip_recipients" env:"LNBROKER_MAX_TIP_RECIPIENTS" env-default:"32"`
	} `toml:"intent"`

	Janitor struct {
		IntervalMinutes int `toml:"interval_minutes" env:"LNBROKER_JANITOR_INTERVAL_MINUTES" env-default:"5"`
	} `toml:"janitor"`

	Webhook struct {
		ProductionSecret string `toml:"production_secret" env:"LNBROKER_WEBHOOK_SECRET_PRODUCTION"`
		StagingSecret    string `toml:"staging_secret" env:"LNBROKER_WEBHOOK_SECRET_STAGING"`
	} `toml:"webhook"`

	BrokerWallet struct {
		ProductionAPIKey   string `toml:"production_api_key" env:"LNBROKER_BROKER_API_KEY_PRODUCTION"`
		ProductionWalletID string `toml:"production_wallet_id" env:"LNBROKER_BROKER_WALLET_ID_PRODUCTION"`
		StagingAPIKey      string `toml:"staging_api_key" env:"LNBROKER_BROKER_API_KEY_STAGING"`
		StagingWalletID    string `toml:"staging_wallet_id" env:"LNBROKER_BROKER_WALLET_ID_STAGING"`
	} `toml:"broker_wallet"`

	Provider struct {
		ProductionAPIURL string `toml:"production_api_url" env:"LNBROKER_PROVIDER_API_URL_PRODUCTION"`
		StagingAPIURL    string `toml:"staging_api_url" env:"LNBROKER_PROVIDER_API_URL_STAGING"`
	} `toml:"provider"`

	LND struct {
		ProductionGRPCHost     string `toml:"production_grpc_host" env:"LNBROKER_LND_GRPC_HOST_PRODUCTION"`
		ProductionGRPCPort     string `toml:"production_grpc_port" env:"LNBROKER_LND_GRPC_PORT_PRODUCTION" env-default:"10009"`
		ProductionTLSCertPath  string `toml:"production_tls_cert_path" env:"LNBROKER_LND_TLS_CERT_PRODUCTION"`
		ProductionMacaroonPath string `toml:"production_macaroon_path" env:"LNBROKER_LND_MACAROON_PRODUCTION"`
		StagingGRPCHost        string `toml:"staging_grpc_host" env:"LNBROKER_LND_GRPC_HOST_STAGING"`
		StagingGRPCPort        string `toml:"staging_grpc_port" env:"LNBROKER_LND_GRPC_PORT_STAGING" env-default:"10009"`
		StagingTLSCertPath     string `toml:"staging_tls_cert_path" env:"LNBROKER_LND_TLS_CERT_STAGING"`
		StagingMacaroonPath    string `toml:"staging_macaroon_path" env:"LNBROKER_LND_MACAROON_STAGING"`
		PaymentTimeoutSeconds  int    `toml:"payment_timeout_seconds" env:"LNBROKER_LND_PAYMENT_TIMEOUT_SECONDS" env-default:"30"`
		MaxPaymentFeeSats      int64  `toml:"max_payment_fee_sats" env:"LNBROKER_LND_MAX_PAYMENT_FEE_SATS" env-default:"100"`
	} `toml:"lnd"`

	Secretbox struct {
		MasterPassword string `toml:"master_password" env:"LNBROKER_SECRETBOX_MASTER_PASSWORD"`
	} `toml:"secretbox"`

	HTTP struct {
		Addr string `toml:"addr" env:"LNBROKER_HTTP_ADDR" env-default:":8080"`
	} `toml:"http"`
}

// JanitorInterval returns the janitor tick period as a time.Duration.
func (c *BrokerConfig) JanitorInterval() time.Duration {
	return time.Duration(c.Janitor.IntervalMinutes) * time.Minute
}

// DefaultIntentTTL returns the pending-intent expiry window.
func (c *BrokerConfig) DefaultIntentTTL() time.Duration {
	return time.Duration(c.Intent.DefaultTTLMinutes) * time.Minute
}

// ProcessingTTL returns the configured processing TTL. No caller in this
// repository currently applies it to the hot cache.
func (c *BrokerConfig) ProcessingTTL() time.Duration {
	return time.Duration(c.Intent.ProcessingTTLMinutes) * time.Minute
}
