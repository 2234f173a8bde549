package verification

import (
	"context"
	"fmt"
	"math/big"
	"time"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/types"
	"github.com/vitwit/bando/utils"
)

// Verifier checks a quote before anything is broadcast.
type Verifier interface {
	VerifyQuote(ctx context.Context, network types.Network, quote *types.Quote) (*types.VerificationResult, error)
}

// NativeBalancer reports a wallet's native balance in the chain's smallest
// unit. *clients.EVMClient satisfies it.
type NativeBalancer interface {
	Balance(ctx context.Context) (*big.Int, error)
}

var _ Verifier = (*VerificationService)(nil)

// VerificationService validates quotes against the networks they will be
// settled on.
type VerificationService struct {
	networks  map[string]types.Network
	balancers map[string]NativeBalancer
	timeout   time.Duration
	logger    logger.Logger
}

// NewVerificationService creates a new verification service
func NewVerificationService(timeout time.Duration, l logger.Logger) *VerificationService {
	if l == nil {
		l = logger.NoopLogger{}
	}
	return &VerificationService{
		networks:  make(map[string]types.Network),
		balancers: make(map[string]NativeBalancer),
		timeout:   timeout,
		logger:    l,
	}
}

// AddNetwork registers a network quotes may be verified against.
func (s *VerificationService) AddNetwork(network types.Network) error {
	if !network.IsEVM() && !network.IsSolana() {
		return types.NewError(types.ErrUnsupportedNetwork, types.StageConfig,
			fmt.Sprintf("unsupported network: %s", network), nil)
	}
	s.networks[network.Key] = network
	return nil
}

// AddEVMBalancer enables the native balance check for an EVM network.
func (s *VerificationService) AddEVMBalancer(network types.Network, b NativeBalancer) error {
	if !network.IsEVM() {
		return types.NewError(types.ErrUnsupportedNetwork, types.StageConfig,
			fmt.Sprintf("network %s is not an EVM network", network), nil)
	}
	if err := s.AddNetwork(network); err != nil {
		return err
	}
	s.balancers[network.Key] = b
	return nil
}

// IsNetworkSupported checks if a network is supported for verification
func (s *VerificationService) IsNetworkSupported(network types.Network) bool {
	_, ok := s.networks[network.Key]
	return ok
}

// VerifyQuote checks that quote can be settled on network. An invalid quote
// is reported in the result, not as an error; errors are reserved for an
// unregistered network.
func (s *VerificationService) VerifyQuote(
	ctx context.Context,
	network types.Network,
	quote *types.Quote,
) (*types.VerificationResult, error) {
	if !s.IsNetworkSupported(network) {
		return nil, types.NewError(types.ErrUnsupportedNetwork, types.StageVerification,
			fmt.Sprintf("network %s is not supported", network), nil)
	}

	result, value := s.QuickVerify(network, quote)
	if !result.IsValid || !network.IsEVM() {
		return result, nil
	}

	balancer, ok := s.balancers[network.Key]
	if !ok || value.Sign() == 0 {
		return result, nil
	}

	verifyCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	balance, err := balancer.Balance(verifyCtx)
	if err != nil {
		// preflight only; the broadcast reports the real failure
		s.logger.Warn("balance check skipped", map[string]any{
			"network":  network.Key,
			"quote_id": quote.ID,
			"error":    err,
		})
		return result, nil
	}
	if balance.Cmp(value) < 0 {
		return invalid(quote, network, fmt.Sprintf("native balance %s is below the transaction value %s", balance, value)), nil
	}
	return result, nil
}

// QuickVerify performs the structural checks that need no RPC. It also
// returns the decoded EVM transaction value (zero for Solana).
func (s *VerificationService) QuickVerify(network types.Network, quote *types.Quote) (*types.VerificationResult, *big.Int) {
	zero := new(big.Int)

	if quote == nil {
		return invalid(nil, network, "quote is empty"), zero
	}
	if err := utils.ValidateStruct(quote); err != nil {
		return invalid(quote, network, fmt.Sprintf("quote is incomplete: %v", err)), zero
	}
	if quote.ID == "" {
		s.logger.Warn("quote has no id, receipts cannot be deduplicated", map[string]any{"network": network.Key})
	}
	if quote.ChainID != 0 && quote.ChainID != network.ChainID {
		return invalid(quote, network, fmt.Sprintf("quote is for chain %s, not %s", quote.ChainID, network.ChainID)), zero
	}
	if quote.TotalAmount != "" {
		if _, err := utils.ValidateAmount(quote.TotalAmount.String()); err != nil {
			return invalid(quote, network, fmt.Sprintf("invalid total amount: %v", err)), zero
		}
	}

	req := quote.TransactionRequest
	switch {
	case network.IsEVM():
		if err := utils.ValidateAddressForFamily(req.To, types.ChainEVM); err != nil {
			return invalid(quote, network, fmt.Sprintf("invalid transaction target: %v", err)), zero
		}
		value, err := utils.ParseHexValue(req.Value)
		if err != nil {
			return invalid(quote, network, err.Error()), zero
		}
		if _, err := utils.ParseHexData(req.Data); err != nil {
			return invalid(quote, network, fmt.Sprintf("invalid transaction data: %v", err)), zero
		}
		return valid(quote, network), value

	case network.IsSolana():
		raw, err := utils.ValidateBase64(req.Data)
		if err != nil {
			return invalid(quote, network, fmt.Sprintf("invalid transaction payload: %v", err)), zero
		}
		tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(raw))
		if err != nil {
			return invalid(quote, network, fmt.Sprintf("undecodable transaction: %v", err)), zero
		}
		if tx.Message.Header.NumRequiredSignatures == 0 {
			return invalid(quote, network, "transaction requires no signer"), zero
		}
		return valid(quote, network), zero
	}

	return invalid(quote, network, fmt.Sprintf("unsupported network: %s", network)), zero
}

func valid(quote *types.Quote, network types.Network) *types.VerificationResult {
	return &types.VerificationResult{IsValid: true, QuoteID: quote.ID, Network: network.Key}
}

func invalid(quote *types.Quote, network types.Network, reason string) *types.VerificationResult {
	r := &types.VerificationResult{InvalidReason: reason, Network: network.Key}
	if quote != nil {
		r.QuoteID = quote.ID
	}
	return r
}
