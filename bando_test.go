package bando

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/bando/clients"
	"github.com/vitwit/bando/commerce"
	"github.com/vitwit/bando/types"
)

const testWallet = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

type fakeChain struct {
	network    types.Network
	hash       string
	sendErr    error
	confirmErr error

	mu   sync.Mutex
	sent []*types.TransactionRequest
}

var _ clients.Client = (*fakeChain)(nil)

func (f *fakeChain) SendTransaction(_ context.Context, req *types.TransactionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.hash, nil
}

func (f *fakeChain) Confirm(_ context.Context, hash string) (*types.TransactionOutcome, error) {
	if f.confirmErr != nil {
		return &types.TransactionOutcome{Hash: hash}, f.confirmErr
	}
	return &types.TransactionOutcome{Hash: hash, VirtualMachineType: f.network.VMType(), Confirmed: true}, nil
}

func (f *fakeChain) Address() string           { return testWallet }
func (f *fakeChain) GetNetwork() types.Network { return f.network }
func (f *fakeChain) Close()                    {}

func (f *fakeChain) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeCommerce serves quotes and records receipts.
type fakeCommerce struct {
	mu       sync.Mutex
	quote    string
	status   int
	receipts []receiptCall
}

type receiptCall struct {
	key  string
	body types.PaymentReceiptRequest
}

func (f *fakeCommerce) server(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/quotes/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.quote)
	})
	r.Post("/wallets/{wallet}/transactions/", func(w http.ResponseWriter, r *http.Request) {
		var body types.PaymentReceiptRequest
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.receipts = append(f.receipts, receiptCall{key: r.Header.Get(commerce.IdempotencyHeader), body: body})
		status := f.status
		f.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"transactionId": "bando-tx-1", "givenReference": "buyer@example.com"}`)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeCommerce) calls() []receiptCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]receiptCall(nil), f.receipts...)
}

const evmQuote = `{
	"id": "q1", "sku": "sku-123", "fiatCurrency": "MXN", "fiatAmount": "200",
	"digitalAsset": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	"digitalAssetAmount": "10.00", "totalAmount": "10.00", "chainId": 42161,
	"transactionRequest": {"to": "0x1111111111111111111111111111111111111111", "data": "0xa9059cbb", "value": "0x0"}
}`

func setup(t *testing.T, chain *fakeChain, api *fakeCommerce) *Bando {
	t.Helper()
	if api.quote == "" {
		api.quote = evmQuote
	}
	srv := api.server(t)

	b := New(&types.BandoConfig{}, commerce.New(srv.URL))
	require.NoError(t, b.AddClient(types.NetworkArbitrum, chain))
	return b
}

func purchaseRequest() PurchaseRequest {
	return PurchaseRequest{
		Network:      types.NetworkArbitrum,
		SKU:          "sku-123",
		FiatCurrency: "MXN",
		DigitalAsset: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		Reference:    "buyer@example.com",
	}
}

func TestPurchase(t *testing.T) {
	chain := &fakeChain{network: types.NetworkArbitrum, hash: "0xdeadbeef"}
	api := &fakeCommerce{}
	b := setup(t, chain, api)

	res, err := b.Purchase(context.Background(), purchaseRequest())
	require.NoError(t, err)
	require.Equal(t, "q1", res.Quote.ID)
	require.Equal(t, "0xdeadbeef", res.Outcome.Hash)
	require.Equal(t, "bando-tx-1", res.Receipt.Identifier())

	require.Equal(t, 1, chain.sends())
	calls := api.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "q1", calls[0].key)

	body := calls[0].body
	require.Equal(t, "buyer@example.com", body.Reference)
	require.Equal(t, "0xdeadbeef", body.TransactionReceipt.Hash)
	require.Equal(t, types.VMTypeEVM, body.TransactionReceipt.VirtualMachineType)
	require.Equal(t, "42161", body.TransactionIntent.Chain)
	require.Equal(t, "q1", body.TransactionIntent.QuoteID)
	require.Equal(t, testWallet, body.TransactionIntent.Wallet)
}

func TestPurchaseNoReceiptWithoutConfirmation(t *testing.T) {
	tests := []struct {
		name     string
		chain    *fakeChain
		wantCode string
		wantHash string
	}{
		{
			name:     "broadcast failure",
			chain:    &fakeChain{sendErr: types.NewError(types.ErrSubmission, types.StageSubmission, "insufficient funds", nil)},
			wantCode: types.ErrSubmission,
		},
		{
			name:     "revert",
			chain:    &fakeChain{hash: "0xdeadbeef", confirmErr: types.NewError(types.ErrOnChainRevert, types.StageConfirmation, "reverted", nil)},
			wantCode: types.ErrOnChainRevert,
			wantHash: "0xdeadbeef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.chain.network = types.NetworkArbitrum
			api := &fakeCommerce{}
			b := setup(t, tt.chain, api)

			res, err := b.Purchase(context.Background(), purchaseRequest())
			require.True(t, types.IsCode(err, tt.wantCode), err)
			require.Nil(t, res.Receipt)
			require.Empty(t, api.calls())

			be, _ := types.AsBandoError(err)
			require.Equal(t, "q1", be.QuoteID)
			require.Equal(t, tt.wantHash, be.TxHash)
		})
	}
}

func TestPurchaseReceiptFailureCanBeResent(t *testing.T) {
	chain := &fakeChain{network: types.NetworkArbitrum, hash: "0xdeadbeef"}
	api := &fakeCommerce{status: http.StatusBadGateway}
	b := setup(t, chain, api)

	_, err := b.Purchase(context.Background(), purchaseRequest())
	require.True(t, types.IsCode(err, types.ErrReceipt), err)

	be, _ := types.AsBandoError(err)
	require.Equal(t, "0xdeadbeef", be.TxHash)
	pending, ok := be.Data.(*types.PendingReceipt)
	require.True(t, ok)

	api.mu.Lock()
	api.status = http.StatusOK
	api.mu.Unlock()

	receipt, err := b.ResendReceipt(context.Background(), pending)
	require.NoError(t, err)
	require.Equal(t, "bando-tx-1", receipt.Identifier())

	calls := api.calls()
	require.Len(t, calls, 2)
	require.Equal(t, calls[0].key, calls[1].key)
	require.Equal(t, "q1", calls[1].key)
	require.Equal(t, 1, chain.sends())
}

func TestPurchaseApproval(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		chain := &fakeChain{network: types.NetworkArbitrum, hash: "0xdeadbeef"}
		b := setup(t, chain, &fakeCommerce{})

		req := purchaseRequest()
		req.Approve = func(context.Context, *types.Quote) (*types.Approval, error) { return nil, nil }

		_, err := b.Purchase(context.Background(), req)
		require.True(t, types.IsCode(err, types.ErrCancelled))
		require.Zero(t, chain.sends())
	})

	t.Run("approval supplies delivery details", func(t *testing.T) {
		chain := &fakeChain{network: types.NetworkArbitrum, hash: "0xdeadbeef"}
		api := &fakeCommerce{}
		b := setup(t, chain, api)

		req := purchaseRequest()
		req.Approve = func(_ context.Context, q *types.Quote) (*types.Approval, error) {
			require.Equal(t, "q1", q.ID)
			return &types.Approval{
				Reference:      "+5215555555555",
				RequiredFields: types.RequiredFields{{Key: "accountId", Value: "42"}},
			}, nil
		}

		_, err := b.Purchase(context.Background(), req)
		require.NoError(t, err)

		body := api.calls()[0].body
		require.Equal(t, "+5215555555555", body.Reference)
		require.Equal(t, types.RequiredFields{{Key: "accountId", Value: "42"}}, body.RequiredFields)
	})
}

func TestPurchaseInvalidQuoteIsNotBroadcast(t *testing.T) {
	chain := &fakeChain{network: types.NetworkArbitrum, hash: "0xdeadbeef"}
	api := &fakeCommerce{quote: `{"id": "q1", "sku": "sku-123", "chainId": 1,
		"transactionRequest": {"to": "0x1111111111111111111111111111111111111111", "data": "0x", "value": "0x0"}}`}
	b := setup(t, chain, api)

	_, err := b.Purchase(context.Background(), purchaseRequest())
	require.True(t, types.IsCode(err, types.ErrInvalidQuote), err)
	require.Zero(t, chain.sends())
	require.Empty(t, api.calls())
}

func TestPurchaseUnsupportedNetwork(t *testing.T) {
	b := setup(t, &fakeChain{network: types.NetworkArbitrum}, &fakeCommerce{})

	req := purchaseRequest()
	req.Network = types.NetworkBase
	_, err := b.Purchase(context.Background(), req)
	require.True(t, types.IsCode(err, types.ErrUnsupportedNetwork))
}

func TestPurchaseSessionRejectsReuse(t *testing.T) {
	chain := &fakeChain{network: types.NetworkArbitrum, hash: "0xdeadbeef"}
	api := &fakeCommerce{}
	b := setup(t, chain, api)

	req := purchaseRequest()
	req.Session = NewSession()

	_, err := b.Purchase(context.Background(), req)
	require.NoError(t, err)
	require.True(t, req.Session.Processed("q1"))

	_, err = b.Purchase(context.Background(), req)
	require.True(t, types.IsCode(err, types.ErrAlreadyProcessed))
	require.Equal(t, 1, chain.sends())
	require.Len(t, api.calls(), 1)
}

func TestPurchaseCancelledBeforeBroadcast(t *testing.T) {
	chain := &fakeChain{network: types.NetworkArbitrum, hash: "0xdeadbeef"}
	b := setup(t, chain, &fakeCommerce{})

	ctx, cancel := context.WithCancel(context.Background())
	req := purchaseRequest()
	req.Approve = func(context.Context, *types.Quote) (*types.Approval, error) {
		cancel()
		return &types.Approval{}, nil
	}

	_, err := b.Purchase(ctx, req)
	require.True(t, types.IsCode(err, types.ErrCancelled))
	require.Zero(t, chain.sends())
}

func TestIntentFromQuote(t *testing.T) {
	q := &types.Quote{ID: "q1", SKU: "sku-123", TotalAmount: "10.00", DigitalAsset: "USDC"}

	intent := IntentFromQuote(q, testWallet, "arbitrum", "")
	require.Equal(t, types.TransactionIntent{
		SKU:              "sku-123",
		Quantity:         1,
		Amount:           "10.00",
		Chain:            "arbitrum",
		Token:            "USDC",
		Wallet:           testWallet,
		Integrator:       types.Integrator,
		HasAcceptedTerms: true,
		QuoteID:          "q1",
	}, intent)

	raw, err := json.Marshal(intent)
	require.NoError(t, err)
	var back types.TransactionIntent
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, intent, back)
}

func TestSessionClaim(t *testing.T) {
	var s Session
	require.NoError(t, s.Claim(""))
	require.NoError(t, s.Claim(""))
	require.NoError(t, s.Claim("q1"))
	require.True(t, types.IsCode(s.Claim("q1"), types.ErrAlreadyProcessed))
	require.False(t, s.Processed("q2"))
}
