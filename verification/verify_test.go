package verification

import (
	"context"
	"encoding/base64"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/bando/types"
)

type staticBalance struct {
	wei *big.Int
	err error
}

func (b staticBalance) Balance(context.Context) (*big.Int, error) { return b.wei, b.err }

func evmQuote() *types.Quote {
	return &types.Quote{
		ID:          "q1",
		SKU:         "sku-123",
		TotalAmount: "10.00",
		ChainID:     42161,
		TransactionRequest: &types.TransactionRequest{
			To:    "0x1111111111111111111111111111111111111111",
			Data:  "0xa9059cbb",
			Value: "0x10",
		},
	}
}

func solanaPayload(t *testing.T) string {
	t.Helper()
	payer := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, payer, solana.NewWallet().PublicKey()).Build()},
		solana.Hash{},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func newService(t *testing.T) *VerificationService {
	t.Helper()
	s := NewVerificationService(time.Second, nil)
	require.NoError(t, s.AddNetwork(types.NetworkArbitrum))
	require.NoError(t, s.AddNetwork(types.NetworkSolana))
	return s
}

func TestVerifyQuoteEVM(t *testing.T) {
	s := newService(t)

	res, err := s.VerifyQuote(context.Background(), types.NetworkArbitrum, evmQuote())
	require.NoError(t, err)
	require.True(t, res.IsValid, res.InvalidReason)
	require.Equal(t, "q1", res.QuoteID)
}

func TestVerifyQuoteInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(q *types.Quote)
	}{
		{"wrong chain", func(q *types.Quote) { q.ChainID = 1 }},
		{"missing request", func(q *types.Quote) { q.TransactionRequest = nil }},
		{"missing sku", func(q *types.Quote) { q.SKU = "" }},
		{"bad target", func(q *types.Quote) { q.TransactionRequest.To = "0x12" }},
		{"bad value", func(q *types.Quote) { q.TransactionRequest.Value = "16" }},
		{"bad data", func(q *types.Quote) { q.TransactionRequest.Data = "0xabc" }},
		{"bad amount", func(q *types.Quote) { q.TotalAmount = "ten" }},
	}

	s := newService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := evmQuote()
			tt.mutate(q)

			res, err := s.VerifyQuote(context.Background(), types.NetworkArbitrum, q)
			require.NoError(t, err)
			require.False(t, res.IsValid)
			require.NotEmpty(t, res.InvalidReason)
		})
	}
}

func TestVerifyQuoteSolana(t *testing.T) {
	s := newService(t)
	q := &types.Quote{
		ID: "q2", SKU: "sku", ChainID: types.SolanaChainID,
		TransactionRequest: &types.TransactionRequest{Data: solanaPayload(t)},
	}

	res, err := s.VerifyQuote(context.Background(), types.NetworkSolana, q)
	require.NoError(t, err)
	require.True(t, res.IsValid, res.InvalidReason)

	q.TransactionRequest.Data = base64.StdEncoding.EncodeToString([]byte("not a transaction"))
	res, err = s.VerifyQuote(context.Background(), types.NetworkSolana, q)
	require.NoError(t, err)
	require.False(t, res.IsValid)
}

func TestVerifyQuoteUnsupportedNetwork(t *testing.T) {
	s := newService(t)
	_, err := s.VerifyQuote(context.Background(), types.NetworkBase, evmQuote())
	require.True(t, types.IsCode(err, types.ErrUnsupportedNetwork))
}

func TestVerifyQuoteBalance(t *testing.T) {
	s := NewVerificationService(time.Second, nil)

	require.NoError(t, s.AddEVMBalancer(types.NetworkArbitrum, staticBalance{wei: big.NewInt(15)}))
	res, err := s.VerifyQuote(context.Background(), types.NetworkArbitrum, evmQuote())
	require.NoError(t, err)
	require.False(t, res.IsValid)
	require.Contains(t, res.InvalidReason, "below the transaction value")

	require.NoError(t, s.AddEVMBalancer(types.NetworkArbitrum, staticBalance{wei: big.NewInt(16)}))
	res, err = s.VerifyQuote(context.Background(), types.NetworkArbitrum, evmQuote())
	require.NoError(t, err)
	require.True(t, res.IsValid)

	require.NoError(t, s.AddEVMBalancer(types.NetworkArbitrum, staticBalance{err: errors.New("rpc down")}))
	res, err = s.VerifyQuote(context.Background(), types.NetworkArbitrum, evmQuote())
	require.NoError(t, err)
	require.True(t, res.IsValid)
}
