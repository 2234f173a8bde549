package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/types"
	"github.com/vitwit/bando/utils"
)

const defaultPollInterval = 2 * time.Second

// EVMBackend is the subset of ethclient.Client the EVM client needs.
type EVMBackend interface {
	ethereum.ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

var (
	_ Client     = (*EVMClient)(nil)
	_ EVMBackend = (*ethclient.Client)(nil)
)

// EVMClient signs and broadcasts quote transactions on an EVM network.
type EVMClient struct {
	network       types.Network
	backend       EVMBackend
	key           *ecdsa.PrivateKey
	address       common.Address
	pollInterval  time.Duration
	confirmations uint64
	multicall     string
	sentinels     []string
	log           logger.Logger
}

func NewEVMClient(network types.Network, cfg types.ClientConfig) (*EVMClient, error) {
	if cfg.RPCUrl == "" {
		return nil, fmt.Errorf("rpc url is required for %s", network)
	}
	client, err := ethclient.Dial(cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM RPC: %w", err)
	}
	return NewEVMClientWithBackend(network, client, cfg)
}

// NewEVMClientWithBackend builds a client over an already connected backend.
func NewEVMClientWithBackend(network types.Network, backend EVMBackend, cfg types.ClientConfig) (*EVMClient, error) {
	if !network.IsEVM() {
		return nil, fmt.Errorf("network %s is not an EVM network", network)
	}
	key, err := utils.PrivateKeyFromHex(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	c := &EVMClient{
		network:       network,
		backend:       backend,
		key:           key,
		address:       utils.AddressFromPrivateKey(key),
		pollInterval:  cfg.PollInterval,
		confirmations: cfg.Confirmations,
		multicall:     cfg.MulticallAddress,
		sentinels:     cfg.NativeSentinels,
		log:           logger.NoopLogger{},
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.confirmations == 0 {
		c.confirmations = 1
	}
	return c, nil
}

func (e *EVMClient) SetLogger(l logger.Logger) {
	if l != nil {
		e.log = l
	}
}

func (e *EVMClient) Address() string { return e.address.Hex() }

func (e *EVMClient) GetNetwork() types.Network { return e.network }

func (e *EVMClient) Close() { e.backend.Close() }

// Balance returns the wallet's native balance in wei.
func (e *EVMClient) Balance(ctx context.Context) (*big.Int, error) {
	return e.backend.BalanceAt(ctx, e.address, nil)
}

// BalanceDiscovery returns a holdings scanner backed by the same RPC.
func (e *EVMClient) BalanceDiscovery() *BalanceDiscovery {
	return NewBalanceDiscovery(e.backend, e.multicall).WithNativeSentinels(e.sentinels)
}

// SendTransaction signs the request as an EIP-1559 transaction and
// broadcasts it. It returns the transaction hash as soon as the node accepts
// it; any failure up to that point is a SUBMISSION_ERROR.
func (e *EVMClient) SendTransaction(ctx context.Context, req *types.TransactionRequest) (string, error) {
	if req == nil {
		return "", submissionError("missing transaction request", nil)
	}
	if !common.IsHexAddress(req.To) {
		return "", submissionError(fmt.Sprintf("invalid destination %q", req.To), nil)
	}
	value, err := utils.ParseHexValue(req.Value)
	if err != nil {
		return "", submissionError("invalid transaction value", err)
	}
	data, err := utils.ParseHexData(req.Data)
	if err != nil {
		return "", submissionError("invalid transaction data", err)
	}

	chainID, err := e.backend.ChainID(ctx)
	if err != nil {
		return "", submissionError("failed to fetch chain id", err)
	}
	if e.network.ChainID != 0 && chainID.Int64() != int64(e.network.ChainID) {
		return "", submissionError(
			fmt.Sprintf("rpc serves chain %s, expected %s", chainID, e.network.ChainID), nil)
	}

	nonce, err := e.backend.PendingNonceAt(ctx, e.address)
	if err != nil {
		return "", submissionError("failed to fetch nonce", err)
	}
	tip, err := e.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return "", submissionError("failed to suggest gas tip", err)
	}
	head, err := e.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", submissionError("failed to fetch latest header", err)
	}
	baseFee := new(big.Int)
	if head != nil && head.BaseFee != nil {
		baseFee.Set(head.BaseFee)
	}
	// tip + 2*baseFee survives several full blocks of base fee growth
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))

	to := common.HexToAddress(req.To)
	gas, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:      e.address,
		To:        &to,
		Value:     value,
		Data:      data,
		GasTipCap: tip,
		GasFeeCap: feeCap,
	})
	if err != nil {
		return "", submissionError("gas estimation failed", err)
	}

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), e.key)
	if err != nil {
		return "", submissionError("failed to sign transaction", err)
	}

	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return "", submissionError("broadcast rejected", err)
	}

	hash := signed.Hash().Hex()
	e.log.Info("evm transaction broadcast", map[string]any{
		"network": e.network.Key,
		"tx_hash": hash,
		"nonce":   nonce,
		"gas":     gas,
	})
	return hash, nil
}

// Confirm waits for the configured number of confirmations.
func (e *EVMClient) Confirm(ctx context.Context, hash string) (*types.TransactionOutcome, error) {
	return e.WaitForConfirmation(ctx, hash, e.confirmations)
}

// WaitForConfirmation polls for the receipt of hash until it has at least
// confirmations blocks on top of it (the including block counts as one).
// A failed receipt is an ONCHAIN_REVERT; running out of ctx before a final
// state is known is a CONFIRMATION_TIMEOUT.
func (e *EVMClient) WaitForConfirmation(ctx context.Context, hash string, confirmations uint64) (*types.TransactionOutcome, error) {
	if confirmations == 0 {
		confirmations = 1
	}
	if err := utils.ValidateTransactionHash(hash, types.ChainEVM); err != nil {
		return nil, types.NewError(types.ErrUntrackable, types.StageConfirmation,
			fmt.Sprintf("cannot track transaction %q", hash), err).WithIDs("", hash)
	}
	txHash := common.HexToHash(hash)
	start := time.Now()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.backend.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil && receipt != nil:
			outcome := &types.TransactionOutcome{
				Hash:               hash,
				VirtualMachineType: types.VMTypeEVM,
				BlockNumber:        receipt.BlockNumber,
				Elapsed:            time.Since(start),
			}
			if receipt.Status == ethtypes.ReceiptStatusFailed {
				outcome.OnChainError = "execution reverted"
				return outcome, revertError(hash, "transaction reverted on chain", outcome)
			}

			head, err := e.backend.BlockNumber(ctx)
			if err == nil && receipt.BlockNumber != nil && head+1 >= receipt.BlockNumber.Uint64()+confirmations {
				outcome.Confirmed = true
				return outcome, nil
			}

		case err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil:
			e.log.Warn("receipt lookup failed", map[string]any{
				"network": e.network.Key,
				"tx_hash": hash,
				"error":   err,
			})
		}

		select {
		case <-ctx.Done():
			return nil, timeoutError(hash, ctx.Err())
		case <-ticker.C:
		}
	}
}
