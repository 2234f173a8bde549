// Package commerce is a client for the Bando commerce API: quotes, wallet
// transaction receipts and the product catalog.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/metrics"
	"github.com/vitwit/bando/types"
	"github.com/vitwit/bando/utils"
	"golang.org/x/time/rate"
)

const (
	SandboxURL    = "https://apidev.bando.cool/api/v1"
	ProductionURL = "https://api.bando.cool/api/v1"

	DefaultCacheTTL = 5 * time.Minute

	// IdempotencyHeader carries the quote id on wallet transaction requests.
	IdempotencyHeader = "Idempotency-Key"

	maxBodySize = 4 << 20
)

// BaseURL returns the API base for an environment name. Anything but
// "production" maps to the sandbox.
func BaseURL(env string) string {
	if strings.EqualFold(env, "production") {
		return ProductionURL
	}
	return SandboxURL
}

// Client talks to the commerce API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiToken   string
	integrator string
	limiter    *rate.Limiter
	cacheTTL   time.Duration
	cache      *cache.Cache
	logger     logger.Logger
	metrics    metrics.Recorder
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		integrator: types.Integrator,
		cacheTTL:   DefaultCacheTTL,
		logger:     logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheTTL > 0 {
		c.cache = cache.New(c.cacheTTL, 2*c.cacheTTL)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// GetQuote requests a priced quote. Any transport failure, non-2xx status or
// error body is a QUOTE_ERROR; no funds have moved at this point.
func (c *Client) GetQuote(ctx context.Context, req types.QuoteRequest) (*types.Quote, error) {
	start := time.Now()
	labels := map[string]string{"network": req.ChainID.String()}
	c.metrics.IncCounter(metrics.EventQuoteRequested, labels)
	defer metrics.Since(c.metrics, metrics.OpQuote, start, labels)

	if err := utils.ValidateStruct(req); err != nil {
		c.metrics.IncCounter(metrics.EventQuoteFailed, labels)
		return nil, types.NewError(types.ErrQuote, types.StageQuote, "invalid quote request", err)
	}

	c.logger.Info("requesting quote", map[string]any{
		"sku":           req.SKU,
		"fiat_currency": req.FiatCurrency,
		"digital_asset": req.DigitalAsset,
		"chain_id":      req.ChainID,
	})

	status, body, err := c.postJSON(ctx, c.baseURL+"/quotes/", req, nil)
	if err != nil {
		c.metrics.IncCounter(metrics.EventQuoteFailed, labels)
		return nil, types.NewError(types.ErrQuote, types.StageQuote, "quote request failed", err)
	}
	if status < 200 || status > 299 {
		c.metrics.IncCounter(metrics.EventQuoteFailed, labels)
		return nil, types.NewError(types.ErrQuote, types.StageQuote,
			fmt.Sprintf("quote rejected with status %d: %s", status, utils.APIMessage(body)), nil)
	}

	quote, err := utils.ParseQuote(body)
	if err != nil {
		c.metrics.IncCounter(metrics.EventQuoteFailed, labels)
		return nil, err
	}

	c.logger.Info("quote received", map[string]any{
		"quote_id":     quote.ID,
		"total_amount": quote.TotalAmount.String(),
		"fee_amount":   quote.FeeAmount.String(),
	})
	return quote, nil
}

// NewPendingReceipt assembles the receipt request for a paid quote, including
// the idempotency key. When the quote has no id a manual-<uuid> key is used
// and a warning logged, since retries can then no longer be deduplicated.
func (c *Client) NewPendingReceipt(quote *types.Quote, wallet string, req types.PaymentReceiptRequest) *types.PendingReceipt {
	key := ""
	quoteID := ""
	if quote != nil {
		quoteID = quote.ID
		key = quote.ID
	}
	if key == "" {
		key = "manual-" + uuid.NewString()
		c.logger.Warn("quote has no id, using a generated idempotency key", map[string]any{
			"idempotency_key": key,
			"wallet":          wallet,
		})
	}
	return &types.PendingReceipt{
		QuoteID:        quoteID,
		Wallet:         wallet,
		IdempotencyKey: key,
		Request:        req,
	}
}

// SendPaymentReceipt registers a paid quote with the API. The request is
// keyed by quote.ID so a retry can never create a second order. On failure
// the returned RECEIPT_ERROR carries the *types.PendingReceipt to retry with.
func (c *Client) SendPaymentReceipt(ctx context.Context, quote *types.Quote, wallet string, req types.PaymentReceiptRequest) (*types.Receipt, error) {
	return c.ResendPaymentReceipt(ctx, c.NewPendingReceipt(quote, wallet, req))
}

// ResendPaymentReceipt replays a pending receipt with its original key.
func (c *Client) ResendPaymentReceipt(ctx context.Context, pending *types.PendingReceipt) (*types.Receipt, error) {
	start := time.Now()
	labels := map[string]string{"network": pending.Request.TransactionIntent.Chain}
	defer metrics.Since(c.metrics, metrics.OpReceipt, start, labels)

	fail := func(msg string, err error) error {
		c.metrics.IncCounter(metrics.EventReceiptFailed, labels)
		e := types.NewError(types.ErrReceipt, types.StageReceipt, msg, err).
			WithIDs(pending.QuoteID, pending.Request.TransactionReceipt.Hash)
		e.Data = pending
		return e
	}

	body, err := utils.SerializePaymentReceipt(&pending.Request)
	if err != nil {
		return nil, fail("invalid payment receipt", err)
	}

	endpoint := fmt.Sprintf("%s/wallets/%s/transactions/?%s", c.baseURL,
		url.PathEscape(pending.Wallet), url.Values{"integrator": {c.integrator}}.Encode())

	c.logger.Info("sending payment receipt", map[string]any{
		"quote_id": pending.QuoteID,
		"wallet":   pending.Wallet,
		"tx_hash":  pending.Request.TransactionReceipt.Hash,
	})

	status, resp, err := c.postJSON(ctx, endpoint, json.RawMessage(body), map[string]string{
		IdempotencyHeader: pending.IdempotencyKey,
	})
	if err != nil {
		return nil, fail("receipt request failed", err)
	}
	if status < 200 || status > 299 {
		return nil, fail(fmt.Sprintf("receipt rejected with status %d: %s", status, utils.APIMessage(resp)), nil)
	}

	// the order exists once the API answered 2xx, whatever the body says
	receipt := &types.Receipt{}
	if len(bytes.TrimSpace(resp)) > 0 {
		if parsed, err := utils.ParseReceipt(resp); err == nil {
			receipt = parsed
		} else {
			c.logger.Warn("undecodable receipt response", map[string]any{"quote_id": pending.QuoteID, "error": err})
		}
	}

	c.metrics.IncCounter(metrics.EventReceiptSent, labels)
	c.logger.Info("payment receipt registered", map[string]any{
		"quote_id":   pending.QuoteID,
		"receipt_id": receipt.Identifier(),
	})
	return receipt, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, headers map[string]string) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
