// Package bando pays for Bando commerce quotes on EVM and Solana networks:
// it requests a quote, broadcasts the quote's transaction, waits for its final
// state and registers the paid order with the commerce API.
package bando

import (
	"context"
	"fmt"
	"time"

	"github.com/vitwit/bando/clients"
	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/metrics"
	"github.com/vitwit/bando/settlement"
	"github.com/vitwit/bando/types"
	"github.com/vitwit/bando/verification"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultReceiptTimeout = 30 * time.Second
)

// Commerce is the part of the commerce API the purchase flow needs.
// *commerce.Client satisfies it.
type Commerce interface {
	GetQuote(ctx context.Context, req types.QuoteRequest) (*types.Quote, error)
	SendPaymentReceipt(ctx context.Context, quote *types.Quote, wallet string, req types.PaymentReceiptRequest) (*types.Receipt, error)
	ResendPaymentReceipt(ctx context.Context, pending *types.PendingReceipt) (*types.Receipt, error)
}

// ApproveFunc is asked for the buyer's go-ahead once a quote is verified and
// before anything is broadcast. A nil approval cancels the purchase.
type ApproveFunc func(ctx context.Context, quote *types.Quote) (*types.Approval, error)

// Bando is the main struct that runs the purchase flow
type Bando struct {
	api                 Commerce
	verificationService *verification.VerificationService
	settlementService   *settlement.SettlementService
	holdings            map[string]*clients.BalanceDiscovery
	config              *types.BandoConfig

	logger              logger.Logger
	metrics             metrics.Recorder
	timeout             time.Duration
	confirmationTimeout time.Duration
	receiptTimeout      time.Duration
}

// New creates a new Bando instance with the given configuration
func New(config *types.BandoConfig, api Commerce, opts ...Option) *Bando {
	if config == nil {
		config = &types.BandoConfig{}
	}
	if config.Integrator == "" {
		config.Integrator = types.Integrator
	}

	b := &Bando{
		api:                 api,
		holdings:            make(map[string]*clients.BalanceDiscovery),
		config:              config,
		logger:              logger.NoopLogger{},
		metrics:             metrics.NoopRecorder{},
		timeout:             DefaultTimeout,
		confirmationTimeout: settlement.DefaultConfirmationTimeout,
		receiptTimeout:      DefaultReceiptTimeout,
	}
	if config.HTTPTimeout > 0 {
		b.timeout = config.HTTPTimeout
	}
	if config.ConfirmationTimeout > 0 {
		b.confirmationTimeout = config.ConfirmationTimeout
	}
	if config.ReceiptTimeout > 0 {
		b.receiptTimeout = config.ReceiptTimeout
	}

	for _, opt := range opts {
		opt(b)
	}

	b.verificationService = verification.NewVerificationService(b.timeout, b.logger)
	b.settlementService = settlement.NewSettlementService(b.confirmationTimeout, b.logger, b.metrics)
	return b
}

// AddNetwork adds support for a specific network by creating the appropriate client
func (b *Bando) AddNetwork(network types.Network, config types.ClientConfig) error {
	switch {
	case network.IsEVM():
		return b.addEVMNetwork(network, config)
	case network.IsSolana():
		return b.addSolanaNetwork(network, config)
	default:
		return types.NewError(types.ErrUnsupportedNetwork, types.StageConfig,
			fmt.Sprintf("unsupported network: %s", network), nil)
	}
}

// addEVMNetwork adds an EVM network client
func (b *Bando) addEVMNetwork(network types.Network, config types.ClientConfig) error {
	client, err := clients.NewEVMClient(network, config)
	if err != nil {
		return fmt.Errorf("failed to create EVM client for %s: %w", network, err)
	}
	client.SetLogger(b.logger)

	if err := b.verificationService.AddEVMBalancer(network, client); err != nil {
		return err
	}
	if err := b.settlementService.AddEVMClient(network, client); err != nil {
		return err
	}

	b.holdings[network.Key] = client.BalanceDiscovery()
	b.logger.Info("network added", map[string]any{"network": network.Key, "wallet": client.Address()})
	return nil
}

// addSolanaNetwork adds a Solana network client
func (b *Bando) addSolanaNetwork(network types.Network, config types.ClientConfig) error {
	client, err := clients.NewSolanaClient(network, config)
	if err != nil {
		return fmt.Errorf("failed to create Solana client for %s: %w", network, err)
	}
	client.SetLogger(b.logger)

	if err := b.verificationService.AddNetwork(network); err != nil {
		return err
	}
	if err := b.settlementService.AddSolanaClient(network, client); err != nil {
		return err
	}

	b.logger.Info("network added", map[string]any{"network": network.Key, "wallet": client.Address()})
	return nil
}

// AddClient registers an already built chain client for network.
func (b *Bando) AddClient(network types.Network, client clients.Client) error {
	if err := b.verificationService.AddNetwork(network); err != nil {
		return err
	}
	return b.settlementService.AddClient(network, client)
}

// WalletAddress returns the address paying on network.
func (b *Bando) WalletAddress(network types.Network) (string, error) {
	client, err := b.settlementService.Client(network)
	if err != nil {
		return "", err
	}
	return client.Address(), nil
}

// Holdings lists the wallet's non-zero balances among tokens on an EVM network.
func (b *Bando) Holdings(ctx context.Context, network types.Network, tokens []string) ([]types.Holding, error) {
	discovery, ok := b.holdings[network.Key]
	if !ok {
		return nil, types.NewError(types.ErrBalances, types.StageBalances,
			fmt.Sprintf("no balance discovery for network %s", network), nil)
	}
	wallet, err := b.WalletAddress(network)
	if err != nil {
		return nil, err
	}
	return discovery.ListHoldings(ctx, wallet, tokens)
}

// VerifyQuote runs the pre-broadcast checks for quote on network.
func (b *Bando) VerifyQuote(ctx context.Context, network types.Network, quote *types.Quote) (*types.VerificationResult, error) {
	return b.verificationService.VerifyQuote(ctx, network, quote)
}

// IsNetworkSupported checks if a network is supported
func (b *Bando) IsNetworkSupported(network types.Network) bool {
	return b.verificationService.IsNetworkSupported(network) &&
		b.settlementService.IsNetworkSupported(network)
}

// SupportedNetworks returns the keys of the registered networks.
func (b *Bando) SupportedNetworks() []string {
	return b.settlementService.GetSupportedNetworks()
}

// Close closes all client connections
func (b *Bando) Close() {
	b.settlementService.Close()
}
