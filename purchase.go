package bando

import (
	"context"
	"time"

	"github.com/vitwit/bando/metrics"
	"github.com/vitwit/bando/types"
)

// PurchaseRequest describes one purchase of a SKU paid on Network.
type PurchaseRequest struct {
	Network      types.Network
	SKU          string
	FiatCurrency string
	DigitalAsset string

	// Reference identifies the buyer to deliver to (email, phone...).
	Reference      string
	RequiredFields types.RequiredFields

	// Chain is reported in the transaction intent. Defaults to the
	// network's chain id.
	Chain string

	// Approve, when set, is asked before broadcasting.
	Approve ApproveFunc

	// Session, when set, rejects quotes it has already seen broadcast.
	Session *Session
}

// PurchaseResult collects what each stage produced. On failure it holds
// everything known up to the failing stage.
type PurchaseResult struct {
	Wallet  string
	Quote   *types.Quote
	Outcome *types.TransactionOutcome
	Receipt *types.Receipt
}

// Purchase runs quote, verification, approval, settlement and receipt in
// order and stops at the first failing stage. Errors are *types.BandoError
// values naming the stage, quote id and transaction hash.
//
// The receipt is sent only for a confirmed transaction, at most once per
// call, keyed by the quote id.
func (b *Bando) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	start := time.Now()
	labels := map[string]string{"network": req.Network.Key}
	defer metrics.Since(b.metrics, metrics.OpPurchase, start, labels)

	result := &PurchaseResult{}

	wallet, err := b.WalletAddress(req.Network)
	if err != nil {
		return result, err
	}
	result.Wallet = wallet

	quote, err := b.api.GetQuote(ctx, types.QuoteRequest{
		SKU:          req.SKU,
		FiatCurrency: req.FiatCurrency,
		DigitalAsset: req.DigitalAsset,
		Sender:       wallet,
		ChainID:      req.Network.ChainID,
	})
	if err != nil {
		return result, asStageError(err, types.ErrQuote, types.StageQuote, "", "")
	}
	result.Quote = quote

	verified, err := b.verificationService.VerifyQuote(ctx, req.Network, quote)
	if err != nil {
		return result, asStageError(err, types.ErrInvalidQuote, types.StageVerification, quote.ID, "")
	}
	if !verified.IsValid {
		b.logger.Warn("quote rejected before broadcast", map[string]any{
			"quote_id": quote.ID,
			"network":  req.Network.Key,
			"reason":   verified.InvalidReason,
		})
		return result, types.NewError(types.ErrInvalidQuote, types.StageVerification,
			verified.InvalidReason, nil).WithIDs(quote.ID, "")
	}

	reference, fields := req.Reference, req.RequiredFields
	if req.Approve != nil {
		approval, err := req.Approve(ctx, quote)
		if err != nil {
			return result, asStageError(err, types.ErrCancelled, types.StageApproval, quote.ID, "")
		}
		if approval == nil {
			b.logger.Info("purchase declined", map[string]any{"quote_id": quote.ID})
			return result, types.NewError(types.ErrCancelled, types.StageApproval,
				"purchase declined by the buyer", nil).WithIDs(quote.ID, "")
		}
		if approval.Reference != "" {
			reference = approval.Reference
		}
		if len(approval.RequiredFields) > 0 {
			fields = approval.RequiredFields
		}
	}
	if len(fields) == 0 {
		fields = quote.RequiredFields
	}

	if err := ctx.Err(); err != nil {
		return result, types.NewError(types.ErrCancelled, types.StageSubmission,
			"cancelled before broadcast", err).WithIDs(quote.ID, "")
	}
	if req.Session != nil {
		if err := req.Session.Claim(quote.ID); err != nil {
			return result, err
		}
	}

	outcome, err := b.settlementService.Settle(ctx, req.Network, quote.TransactionRequest)
	result.Outcome = outcome
	if err != nil {
		hash := ""
		if outcome != nil {
			hash = outcome.Hash
		}
		return result, asStageError(err, types.ErrSubmission, types.StageSubmission, quote.ID, hash)
	}

	chain := req.Chain
	if chain == "" {
		chain = req.Network.ChainID.String()
	}
	receiptReq := types.PaymentReceiptRequest{
		Reference:          reference,
		RequiredFields:     fields,
		TransactionIntent:  IntentFromQuote(quote, wallet, chain, b.config.Integrator),
		TransactionReceipt: outcome.Receipt(),
	}

	// receipt delivery ignores caller cancellation
	receiptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.receiptTimeout)
	defer cancel()

	receipt, err := b.api.SendPaymentReceipt(receiptCtx, quote, wallet, receiptReq)
	if err != nil {
		b.logger.Error("paid but not registered, resend the pending receipt", map[string]any{
			"quote_id": quote.ID,
			"tx_hash":  outcome.Hash,
			"error":    err,
		})
		return result, asStageError(err, types.ErrReceipt, types.StageReceipt, quote.ID, outcome.Hash)
	}
	result.Receipt = receipt

	b.logger.Info("purchase completed", map[string]any{
		"quote_id":   quote.ID,
		"tx_hash":    outcome.Hash,
		"receipt_id": receipt.Identifier(),
		"network":    req.Network.Key,
	})
	return result, nil
}

// ResendReceipt retries a receipt that failed after payment, with the
// idempotency key it was first sent with.
func (b *Bando) ResendReceipt(ctx context.Context, pending *types.PendingReceipt) (*types.Receipt, error) {
	if pending == nil {
		return nil, types.NewError(types.ErrReceipt, types.StageReceipt, "no pending receipt", nil)
	}
	return b.api.ResendPaymentReceipt(ctx, pending)
}

// IntentFromQuote builds the transaction intent registered with a receipt.
func IntentFromQuote(quote *types.Quote, wallet, chain, integrator string) types.TransactionIntent {
	if integrator == "" {
		integrator = types.Integrator
	}
	return types.TransactionIntent{
		SKU:              quote.SKU,
		Quantity:         1,
		Amount:           quote.TotalAmount,
		Chain:            chain,
		Token:            quote.DigitalAsset,
		Wallet:           wallet,
		Integrator:       integrator,
		HasAcceptedTerms: true,
		QuoteID:          quote.ID,
	}
}

// asStageError converts err into a *types.BandoError, keeping the code of
// errors that already are one.
func asStageError(err error, code string, stage types.Stage, quoteID, txHash string) error {
	if be, ok := types.AsBandoError(err); ok {
		return be.WithIDs(quoteID, txHash)
	}
	return types.NewError(code, stage, err.Error(), err).WithIDs(quoteID, txHash)
}
