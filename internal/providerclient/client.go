// Package providerclient is the broker's own Lightning provider
// adapter: a gRPC client to the broker-owned LND node, used to issue
// invoices on behalf of forwarding destinations and to pay them out of
// the broker's wallet.
package providerclient

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"lnbroker/internal/intent"
)

// Config is one environment's LND connection settings.
type Config struct {
	GRPCHost              string
	GRPCPort              string
	TLSCertPath           string
	MacaroonPath          string
	PaymentTimeoutSeconds int
	MaxPaymentFeeSats     int64
}

// macaroonCredential attaches the hex-encoded macaroon as gRPC
// metadata on every RPC so LND can authenticate the caller.
type macaroonCredential struct {
	macaroon string
}

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool { return true }

type environmentConn struct {
	conn         *grpc.ClientConn
	lnClient     lnrpc.LightningClient
	routerClient routerrpc.RouterClient
	cfg          Config
}

// Client is a payout.ProviderClient backed by two LND node
// connections, one per Environment, selected per call per spec's
// environment-pinning invariant.
type Client struct {
	conns  map[intent.Environment]*environmentConn
	logger *zap.Logger
}

// NewClient dials both the production and staging LND nodes and
// validates each with GetInfo before returning.
func NewClient(logger *zap.Logger, production, staging Config) (*Client, error) {
	prodConn, err := dial(production)
	if err != nil {
		return nil, fmt.Errorf("dial production lnd: %w", err)
	}
	stagingConn, err := dial(staging)
	if err != nil {
		prodConn.conn.Close()
		return nil, fmt.Errorf("dial staging lnd: %w", err)
	}

	return &Client{
		conns: map[intent.Environment]*environmentConn{
			intent.EnvironmentProduction: prodConn,
			intent.EnvironmentStaging:    stagingConn,
		},
		logger: logger,
	}, nil
}

func dial(cfg Config) (*environmentConn, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("load tls cert from %s: %w", cfg.TLSCertPath, err)
	}

	macaroonData, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("read macaroon file %s: %w", cfg.MacaroonPath, err)
	}
	macaroonCreds := macaroonCredential{macaroon: hex.EncodeToString(macaroonData)}

	url := cfg.GRPCHost + ":" + cfg.GRPCPort
	conn, err := grpc.NewClient(url, grpc.WithTransportCredentials(creds), grpc.WithPerRPCCredentials(macaroonCreds))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	lnClient := lnrpc.NewLightningClient(conn)

	info, err := lnClient.GetInfo(context.Background(), &lnrpc.GetInfoRequest{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect to lnd (is it running? wallet unlocked?): %w", err)
	}
	if !info.SyncedToChain {
		return nil, fmt.Errorf("lnd at %s is not synced to chain", url)
	}

	return &environmentConn{
		conn:         conn,
		lnClient:     lnClient,
		routerClient: routerrpc.NewRouterClient(conn),
		cfg:          cfg,
	}, nil
}

func (c *Client) env(e intent.Environment) (*environmentConn, error) {
	ec, ok := c.conns[e]
	if !ok {
		return nil, fmt.Errorf("no lnd connection configured for environment %q", e)
	}
	return ec, nil
}

// Close closes both environments' gRPC connections.
func (c *Client) Close() error {
	var firstErr error
	for _, ec := range c.conns {
		if err := ec.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
