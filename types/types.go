package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Integrator is the integrator tag sent with every wallet transaction.
const Integrator = "bando-app"

// Amount is a decimal amount as returned by the commerce API. The API sends
// amounts either as JSON strings or as JSON numbers; the literal text is kept
// so it can be echoed back unchanged.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a string or number: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// Decimal parses the amount. An empty amount is zero.
func (a Amount) Decimal() (decimal.Decimal, error) {
	if a == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(string(a))
}

func (a Amount) String() string { return string(a) }

// ChainID is a numeric chain id that the API may encode as a number or a string.
type ChainID int64

func (c *ChainID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	*c = ChainID(n)
	return nil
}

func (c ChainID) String() string { return strconv.FormatInt(int64(c), 10) }

// QuoteRequest is the body posted to /quotes/.
type QuoteRequest struct {
	SKU          string  `json:"sku" validate:"required"`
	FiatCurrency string  `json:"fiatCurrency" validate:"required,len=3,alpha"`
	DigitalAsset string  `json:"digitalAsset" validate:"required"`
	Sender       string  `json:"sender" validate:"required"`
	ChainID      ChainID `json:"chainId" validate:"gt=0"`
}

// TransactionRequest is the chain specific payload embedded in a quote.
//
// For EVM networks To, Data and Value are set, Value being a hex encoded
// integer. For Solana, Data holds a base64 encoded serialized versioned
// transaction which may already carry the service's signature.
type TransactionRequest struct {
	To    string `json:"to,omitempty"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`

	// Signed marks a payload the service has already fully signed. When nil the
	// payer's own signature slot decides whether a signature is added.
	Signed *bool `json:"signed,omitempty"`
}

// IsSigned reports whether the payload is explicitly flagged as fully signed.
func (r *TransactionRequest) IsSigned() bool {
	return r != nil && r.Signed != nil && *r.Signed
}

// RequiredField is a piece of buyer supplied metadata the product needs.
type RequiredField struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

// RequiredFields accepts both a list of {key, value} objects and a plain
// object of key/value pairs.
type RequiredFields []RequiredField

func (r *RequiredFields) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = nil
		return nil
	}

	if b[0] == '{' {
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		out := make([]RequiredField, 0, len(m))
		for k, v := range m {
			out = append(out, RequiredField{Key: k, Value: fmt.Sprint(v)})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		*r = out
		return nil
	}

	var list []RequiredField
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*r = list
	return nil
}

// MarshalJSON always encodes a list, never null.
func (r RequiredFields) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]RequiredField(r))
}

// Quote is a priced offer returned by the commerce API. Quote.ID doubles as
// the idempotency key of the wallet transaction registered for it.
type Quote struct {
	ID                 string              `json:"id"`
	SKU                string              `json:"sku" validate:"required"`
	FiatCurrency       string              `json:"fiatCurrency"`
	FiatAmount         Amount              `json:"fiatAmount"`
	DigitalAsset       string              `json:"digitalAsset"`
	DigitalAssetAmount Amount              `json:"digitalAssetAmount"`
	FeeAmount          Amount              `json:"feeAmount"`
	TotalAmount        Amount              `json:"totalAmount"`
	ChainID            ChainID             `json:"chainId"`
	TransactionRequest *TransactionRequest `json:"transactionRequest" validate:"required"`
	RequiredFields     RequiredFields      `json:"requiredFields,omitempty"`

	// Error is set by the API when the quote could not be produced.
	Error   any    `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// VMType is the virtual machine family reported to the commerce API.
type VMType string

const (
	VMTypeEVM VMType = "EVM"
	VMTypeSVM VMType = "SVM"
)

// TransactionOutcome is the result of submitting and confirming a transaction.
type TransactionOutcome struct {
	Hash               string        `json:"hash"`
	VirtualMachineType VMType        `json:"virtualMachineType"`
	Confirmed          bool          `json:"confirmed"`
	OnChainError       any           `json:"onChainError,omitempty"`
	Slot               uint64        `json:"slot,omitempty"`
	BlockNumber        *big.Int      `json:"blockNumber,omitempty"`
	Logs               []string      `json:"logs,omitempty"`
	Elapsed            time.Duration `json:"elapsed,omitempty"`
}

// Receipt converts the outcome into the wire form sent with the payment receipt.
func (o *TransactionOutcome) Receipt() TransactionReceipt {
	return TransactionReceipt{
		Hash:               o.Hash,
		VirtualMachineType: o.VirtualMachineType,
	}
}

// TransactionReceipt is the outcome as the commerce API expects it.
type TransactionReceipt struct {
	Hash               string `json:"hash" validate:"required"`
	VirtualMachineType VMType `json:"virtualMachineType" validate:"required,oneof=EVM SVM"`
}

// TransactionIntent is the buyer's declared purchase intent.
type TransactionIntent struct {
	SKU              string `json:"sku" validate:"required"`
	Quantity         int    `json:"quantity" validate:"gt=0"`
	Amount           Amount `json:"amount"`
	Chain            string `json:"chain" validate:"required"`
	Token            string `json:"token"`
	Wallet           string `json:"wallet" validate:"required"`
	Integrator       string `json:"integrator"`
	HasAcceptedTerms bool   `json:"hasAcceptedTerms"`
	QuoteID          string `json:"quoteId"`
}

// PaymentReceiptRequest is the body posted to /wallets/{address}/transactions/.
type PaymentReceiptRequest struct {
	Reference          string             `json:"reference"`
	RequiredFields     RequiredFields     `json:"requiredFields"`
	TransactionIntent  TransactionIntent  `json:"transactionIntent"`
	TransactionReceipt TransactionReceipt `json:"transactionReceipt"`
}

// Approval is the buyer's go-ahead for a quote together with the delivery
// details the receipt carries.
type Approval struct {
	Reference      string         `json:"reference"`
	RequiredFields RequiredFields `json:"requiredFields,omitempty"`
}

// PendingReceipt holds everything needed to replay a payment receipt with
// the same idempotency key.
type PendingReceipt struct {
	QuoteID        string                `json:"quoteId"`
	Wallet         string                `json:"wallet"`
	IdempotencyKey string                `json:"idempotencyKey"`
	Request        PaymentReceiptRequest `json:"request"`
}

// Receipt is the server's record of the registered wallet transaction.
type Receipt struct {
	ID             string `json:"id,omitempty"`
	TransactionID  string `json:"transactionId,omitempty"`
	GivenReference string `json:"givenReference,omitempty"`
	Status         string `json:"status,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Identifier returns whichever receipt id the server populated.
func (r *Receipt) Identifier() string {
	if r.TransactionID != "" {
		return r.TransactionID
	}
	return r.ID
}

// Holding is a token balance discovered for a wallet.
type Holding struct {
	Address          string          `json:"address"`
	Symbol           string          `json:"symbol"`
	Decimals         int             `json:"decimals"`
	RawBalance       *big.Int        `json:"rawBalance"`
	FormattedBalance decimal.Decimal `json:"formattedBalance"`
}

// VerificationResult contains the result of pre-broadcast quote checks.
type VerificationResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	QuoteID       string `json:"quoteId,omitempty"`
	Network       string `json:"network,omitempty"`
}

// ClientConfig contains configuration for blockchain clients
type ClientConfig struct {
	RPCUrl           string        `json:"rpcUrl" validate:"required,url"`
	PrivateKey       string        `json:"-" validate:"required"`
	PollInterval     time.Duration `json:"pollInterval,omitempty"`
	MulticallAddress string        `json:"multicallAddress,omitempty"`
	Confirmations    uint64        `json:"confirmations,omitempty"`
	NativeSentinels  []string      `json:"nativeSentinels,omitempty"`
	MinNativeBalance *big.Int      `json:"-"` // smallest unit: wei or lamports
}

// BandoConfig contains global configuration for the purchase flow
type BandoConfig struct {
	HTTPTimeout         time.Duration `json:"httpTimeout,omitempty"`
	ConfirmationTimeout time.Duration `json:"confirmationTimeout,omitempty"`
	ReceiptTimeout      time.Duration `json:"receiptTimeout,omitempty"`
	Integrator          string        `json:"integrator,omitempty"`
	LogLevel            string        `json:"logLevel,omitempty"`
	EnableMetrics       bool          `json:"enableMetrics,omitempty"`
}
