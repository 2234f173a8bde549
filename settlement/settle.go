package settlement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vitwit/bando/clients"
	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/metrics"
	"github.com/vitwit/bando/types"
)

// DefaultConfirmationTimeout bounds the wait for a final transaction state.
const DefaultConfirmationTimeout = 120 * time.Second

// Settler submits a quote's transaction request and waits for its outcome.
type Settler interface {
	Settle(ctx context.Context, network types.Network, req *types.TransactionRequest) (*types.TransactionOutcome, error)
}

var _ Settler = (*SettlementService)(nil)

// SettlementService routes transaction requests to the chain client
// registered for their network.
type SettlementService struct {
	clients map[string]clients.Client
	timeout time.Duration
	logger  logger.Logger
	metrics metrics.Recorder
}

// NewSettlementService creates a settlement service. timeout bounds the
// confirmation wait only; it starts once the transaction is broadcast.
func NewSettlementService(timeout time.Duration, l logger.Logger, m metrics.Recorder) *SettlementService {
	if timeout <= 0 {
		timeout = DefaultConfirmationTimeout
	}
	if l == nil {
		l = logger.NoopLogger{}
	}
	if m == nil {
		m = metrics.NoopRecorder{}
	}
	return &SettlementService{
		clients: make(map[string]clients.Client),
		timeout: timeout,
		logger:  l,
		metrics: m,
	}
}

// AddEVMClient adds an EVM client for a specific network
func (s *SettlementService) AddEVMClient(network types.Network, client *clients.EVMClient) error {
	if !network.IsEVM() {
		return types.NewError(types.ErrUnsupportedNetwork, types.StageConfig,
			fmt.Sprintf("network %s is not an EVM network", network), nil)
	}
	return s.AddClient(network, client)
}

// AddSolanaClient adds a Solana client for a specific network
func (s *SettlementService) AddSolanaClient(network types.Network, client *clients.SolanaClient) error {
	if !network.IsSolana() {
		return types.NewError(types.ErrUnsupportedNetwork, types.StageConfig,
			fmt.Sprintf("network %s is not a Solana network", network), nil)
	}
	return s.AddClient(network, client)
}

// AddClient registers any chain client whose family matches network.
func (s *SettlementService) AddClient(network types.Network, client clients.Client) error {
	if client.GetNetwork().Family != network.Family {
		return types.NewError(types.ErrUnsupportedNetwork, types.StageConfig,
			fmt.Sprintf("client for %s cannot settle on %s", client.GetNetwork(), network), nil)
	}
	s.clients[network.Key] = client
	return nil
}

// Client returns the chain client registered for network.
func (s *SettlementService) Client(network types.Network) (clients.Client, error) {
	if c, ok := s.clients[network.Key]; ok && c.GetNetwork().Family == network.Family {
		return c, nil
	}
	return nil, types.NewError(types.ErrUnsupportedNetwork, types.StageSubmission,
		fmt.Sprintf("no client registered for network %s", network), nil)
}

// Settle broadcasts req on network and waits for its final state.
//
// Caller cancellation is honored up to the broadcast. The confirmation wait
// ignores ctx's cancellation and is bounded by the service timeout instead.
func (s *SettlementService) Settle(
	ctx context.Context,
	network types.Network,
	req *types.TransactionRequest,
) (*types.TransactionOutcome, error) {
	client, err := s.Client(network)
	if err != nil {
		return nil, err
	}
	labels := map[string]string{"network": network.Key}

	start := time.Now()
	hash, err := client.SendTransaction(ctx, req)
	metrics.Since(s.metrics, metrics.OpSubmit, start, labels)
	if err != nil {
		s.metrics.IncCounter(metrics.EventTxSubmitFailed, labels)
		s.logger.Error("transaction submission failed", map[string]any{
			"network": network.Key,
			"error":   err,
		})
		return nil, err
	}
	s.metrics.IncCounter(metrics.EventTxSubmitted, labels)
	s.logger.Info("transaction submitted, waiting for confirmation", map[string]any{
		"network": network.Key,
		"tx_hash": hash,
		"timeout": s.timeout.String(),
	})

	confirmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start = time.Now()
	outcome, err := client.Confirm(confirmCtx, hash)
	metrics.Since(s.metrics, metrics.OpConfirmation, start, labels)
	if err != nil {
		switch {
		case types.IsCode(err, types.ErrOnChainRevert):
			s.metrics.IncCounter(metrics.EventTxReverted, labels)
		case types.IsCode(err, types.ErrConfirmationTimeout):
			s.metrics.IncCounter(metrics.EventTxConfirmationTimeout, labels)
		}
		s.logger.Error("transaction did not confirm", map[string]any{
			"network": network.Key,
			"tx_hash": hash,
			"error":   err,
		})
		if be, ok := types.AsBandoError(err); ok {
			be.WithIDs("", hash)
			return outcome, be
		}
		return outcome, types.NewError(types.ErrConfirmationTimeout, types.StageConfirmation,
			"confirmation failed", err).WithIDs("", hash)
	}

	s.metrics.IncCounter(metrics.EventTxConfirmed, labels)
	s.logger.Info("transaction confirmed", map[string]any{
		"network": network.Key,
		"tx_hash": hash,
		"elapsed": outcome.Elapsed.String(),
	})
	return outcome, nil
}

// Close closes all client connections
func (s *SettlementService) Close() {
	for _, client := range s.clients {
		client.Close()
	}
}

// GetSupportedNetworks returns the keys of all networks with a client.
func (s *SettlementService) GetSupportedNetworks() []string {
	networks := make([]string, 0, len(s.clients))
	for key := range s.clients {
		networks = append(networks, key)
	}

	sort.Strings(networks)
	return networks
}

// IsNetworkSupported checks if a network is supported for settlement
func (s *SettlementService) IsNetworkSupported(network types.Network) bool {
	_, err := s.Client(network)
	return err == nil
}
