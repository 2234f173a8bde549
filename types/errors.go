package types

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names the step of the purchase flow an error came from.
type Stage string

const (
	StageConfig       Stage = "config"
	StageQuote        Stage = "quote"
	StageVerification Stage = "verification"
	StageApproval     Stage = "approval"
	StageSubmission   Stage = "submission"
	StageConfirmation Stage = "confirmation"
	StageReceipt      Stage = "receipt"
	StageCatalog      Stage = "catalog"
	StageBalances     Stage = "balances"
)

// Error codes
const (
	// Pre-payment. Safe to abort or retry freely.
	ErrQuote              = "QUOTE_ERROR"
	ErrInvalidQuote       = "INVALID_QUOTE"
	ErrCancelled          = "CANCELLED"
	ErrAlreadyProcessed   = "ALREADY_PROCESSED"
	ErrUnsupportedNetwork = "UNSUPPORTED_NETWORK"
	ErrConfigError        = "CONFIG_ERROR"
	ErrCatalog            = "CATALOG_ERROR"
	ErrBalances           = "BALANCES_ERROR"

	// Broadcast failed, no funds moved. Retry with a fresh quote.
	ErrSubmission = "SUBMISSION_ERROR"

	// Funds moved and the contract reverted. Never reported as success.
	ErrOnChainRevert = "ONCHAIN_REVERT"

	// Final state unknown. Must be resolved by hand before resubmitting.
	ErrConfirmationTimeout = "CONFIRMATION_TIMEOUT"
	// The broadcast returned an identifier the chain client cannot look up.
	ErrUntrackable = "UNTRACKABLE_TRANSACTION"

	// Paid on-chain but not registered. Retry with the same idempotency key.
	ErrReceipt = "RECEIPT_ERROR"
)

// BandoError is the error type surfaced at the flow boundary. It always names
// the failing stage and the last identifiers known when it happened.
type BandoError struct {
	Code    string `json:"code"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	QuoteID string `json:"quoteId,omitempty"`
	TxHash  string `json:"txHash,omitempty"`
	Data    any    `json:"data,omitempty"`
	Err     error  `json:"-"`
}

func NewError(code string, stage Stage, message string, err error) *BandoError {
	return &BandoError{Code: code, Stage: stage, Message: message, Err: err}
}

func (e *BandoError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed [%s]: %s", e.Stage, e.Code, e.Message)
	if e.QuoteID != "" {
		fmt.Fprintf(&b, " (quote %s", e.QuoteID)
		if e.TxHash != "" {
			fmt.Fprintf(&b, ", tx %s", e.TxHash)
		}
		b.WriteString(")")
	} else if e.TxHash != "" {
		fmt.Fprintf(&b, " (tx %s)", e.TxHash)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *BandoError) Unwrap() error { return e.Err }

// WithIDs returns the error with the given identifiers filled in where unset.
func (e *BandoError) WithIDs(quoteID, txHash string) *BandoError {
	if e.QuoteID == "" {
		e.QuoteID = quoteID
	}
	if e.TxHash == "" {
		e.TxHash = txHash
	}
	return e
}

// FundsMoved reports whether the error happened after a broadcast.
func (e *BandoError) FundsMoved() bool {
	switch e.Code {
	case ErrOnChainRevert, ErrConfirmationTimeout, ErrUntrackable, ErrReceipt:
		return true
	}
	return false
}

// AsBandoError extracts a *BandoError from err.
func AsBandoError(err error) (*BandoError, bool) {
	var be *BandoError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	be, ok := AsBandoError(err)
	return ok && be.Code == code
}
