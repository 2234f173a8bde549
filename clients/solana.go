package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/types"
	"github.com/vitwit/bando/utils"
)

// DefaultMinLamports is the balance under which a low balance warning is
// logged before broadcasting (0.01 SOL).
const DefaultMinLamports uint64 = 10_000_000

// SolanaRPC is the subset of rpc.Client the Solana client needs.
type SolanaRPC interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	Close() error
}

var (
	_ Client    = (*SolanaClient)(nil)
	_ SolanaRPC = (*rpc.Client)(nil)
)

// SolanaClient adds the payer's signature to pre-built versioned
// transactions, broadcasts them and verifies their execution.
type SolanaClient struct {
	network      types.Network
	client       SolanaRPC
	key          solana.PrivateKey
	pollInterval time.Duration
	minLamports  uint64
	log          logger.Logger
}

// NewSolanaClient creates a Solana client. cfg.PrivateKey is a base58
// encoded 64 byte secret key.
func NewSolanaClient(network types.Network, cfg types.ClientConfig) (*SolanaClient, error) {
	if cfg.RPCUrl == "" {
		return nil, fmt.Errorf("rpc url is required for %s", network)
	}
	return NewSolanaClientWithRPC(network, rpc.New(cfg.RPCUrl), cfg)
}

func NewSolanaClientWithRPC(network types.Network, client SolanaRPC, cfg types.ClientConfig) (*SolanaClient, error) {
	if !network.IsSolana() {
		return nil, fmt.Errorf("network %s is not a Solana network", network)
	}
	key, err := utils.SolanaKeyFromBase58(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	s := &SolanaClient{
		network:      network,
		client:       client,
		key:          key,
		pollInterval: cfg.PollInterval,
		minLamports:  DefaultMinLamports,
		log:          logger.NoopLogger{},
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if cfg.MinNativeBalance != nil && cfg.MinNativeBalance.IsUint64() {
		s.minLamports = cfg.MinNativeBalance.Uint64()
	}
	return s, nil
}

func (s *SolanaClient) SetLogger(l logger.Logger) {
	if l != nil {
		s.log = l
	}
}

func (s *SolanaClient) Address() string { return s.key.PublicKey().String() }

func (s *SolanaClient) GetNetwork() types.Network { return s.network }

func (s *SolanaClient) Close() { _ = s.client.Close() }

// Balance returns the wallet balance in lamports.
func (s *SolanaClient) Balance(ctx context.Context) (uint64, error) {
	res, err := s.client.GetBalance(ctx, s.key.PublicKey(), rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// SendTransaction decodes the base64 transaction in req.Data, signs the
// payer's slot if it is still empty and broadcasts with preflight enabled.
// Signatures already present are never replaced.
func (s *SolanaClient) SendTransaction(ctx context.Context, req *types.TransactionRequest) (string, error) {
	if req == nil {
		return "", submissionError("missing transaction request", nil)
	}
	raw, err := utils.ValidateBase64(req.Data)
	if err != nil {
		return "", submissionError("transaction payload is not base64", err)
	}
	tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(raw))
	if err != nil {
		return "", submissionError("failed to decode transaction", err)
	}

	signedNow, err := s.signPayerSlot(tx, req.IsSigned())
	if err != nil {
		return "", submissionError("failed to sign transaction", err)
	}

	s.warnOnLowBalance(ctx)

	maxRetries := uint(2)
	sig, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		logs := programLogs(err)
		details := &SubmissionDetails{Logs: logs, Hints: hintsFor(err.Error(), logs)}
		if len(logs) > 0 {
			s.log.Error("preflight failed", map[string]any{"network": s.network.Key, "logs": logs})
		}
		for _, h := range details.Hints {
			s.log.Warn("hint", map[string]any{"network": s.network.Key, "hint": h})
		}
		e := submissionError("broadcast rejected", err)
		e.Data = details
		return "", e
	}

	s.log.Info("solana transaction broadcast", map[string]any{
		"network":      s.network.Key,
		"signature":    sig.String(),
		"payer_signed": signedNow,
	})
	return sig.String(), nil
}

// signPayerSlot fills the wallet's signature slot when it is empty. It
// reports whether a signature was added.
func (s *SolanaClient) signPayerSlot(tx *solana.Transaction, preSigned bool) (bool, error) {
	if preSigned {
		return false, nil
	}

	payer := s.key.PublicKey()
	required := int(tx.Message.Header.NumRequiredSignatures)
	idx := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(payer) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, fmt.Errorf("wallet %s is not a required signer", payer)
	}

	if len(tx.Signatures) < required {
		sigs := make([]solana.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	if tx.Signatures[idx] != (solana.Signature{}) {
		return false, nil
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return false, fmt.Errorf("encode message: %w", err)
	}
	sig, err := s.key.Sign(msg)
	if err != nil {
		return false, err
	}
	tx.Signatures[idx] = sig
	return true, nil
}

func (s *SolanaClient) warnOnLowBalance(ctx context.Context) {
	lamports, err := s.Balance(ctx)
	if err != nil {
		s.log.Debug("balance lookup failed", map[string]any{"network": s.network.Key, "error": err})
		return
	}
	if lamports < s.minLamports {
		s.log.Warn("low SOL balance, the transaction may fail to pay fees", map[string]any{
			"network":  s.network.Key,
			"lamports": lamports,
		})
	}
}

func (s *SolanaClient) Confirm(ctx context.Context, signature string) (*types.TransactionOutcome, error) {
	return s.ConfirmAndVerify(ctx, signature)
}

// ConfirmAndVerify waits until the signature reaches confirmed commitment
// and then checks the executed transaction's meta for an error. A status or
// meta error is an ONCHAIN_REVERT; no final state before ctx is done is a
// CONFIRMATION_TIMEOUT.
func (s *SolanaClient) ConfirmAndVerify(ctx context.Context, signature string) (*types.TransactionOutcome, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, types.NewError(types.ErrUntrackable, types.StageConfirmation,
			fmt.Sprintf("cannot track signature %q", signature), err).WithIDs("", signature)
	}
	start := time.Now()
	maxVersion := uint64(0)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		status, err := s.signatureStatus(ctx, sig)
		if err != nil && ctx.Err() == nil {
			s.log.Warn("signature status lookup failed", map[string]any{
				"network":   s.network.Key,
				"signature": signature,
				"error":     err,
			})
		}

		if status != nil {
			outcome := &types.TransactionOutcome{
				Hash:               signature,
				VirtualMachineType: types.VMTypeSVM,
				Slot:               status.Slot,
			}
			if status.Err != nil {
				outcome.OnChainError = status.Err
				outcome.Elapsed = time.Since(start)
				return outcome, revertError(signature, "transaction failed on chain", outcome)
			}

			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				res, err := s.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
					Commitment:                     rpc.CommitmentConfirmed,
					MaxSupportedTransactionVersion: &maxVersion,
				})
				if err == nil && res != nil && res.Meta != nil {
					outcome.Slot = res.Slot
					outcome.Logs = res.Meta.LogMessages
					outcome.Elapsed = time.Since(start)
					if res.Meta.Err != nil {
						outcome.OnChainError = res.Meta.Err
						return outcome, revertError(signature, "transaction executed with an error",
							&SubmissionDetails{Logs: res.Meta.LogMessages, Hints: hintsFor(fmt.Sprint(res.Meta.Err), res.Meta.LogMessages)})
					}
					outcome.Confirmed = true
					return outcome, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, timeoutError(signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *SolanaClient) signatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	res, err := s.client.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return nil, err
	}
	if res == nil || len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

// programLogs extracts the simulation logs a node attaches to a failed
// preflight.
func programLogs(err error) []string {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return nil
	}
	data, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := data["logs"].([]interface{})
	if !ok {
		return nil
	}
	logs := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			logs = append(logs, s)
		}
	}
	return logs
}
